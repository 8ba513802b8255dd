package commons

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"
	"gopkg.in/fatih/set.v0"
)

// Destination is either a single Address or a *GroupAddress.
type Destination interface {
	fmt.Stringer
	isDestination()
}

type Address string

func (a Address) String() string {
	return string(a)
}

func (Address) isDestination() {}

// NewRandomAddress returns a unique address prefixed with a readable name.
func NewRandomAddress(name string) Address {
	return Address(fmt.Sprintf("%s-%s", name, uuid.NewString()[:8]))
}

// GroupAddress stands for a set of concrete destinations. It is immutable.
type GroupAddress struct {
	members set.Interface
	sorted  []Address
}

func NewGroupAddress(addrs ...Address) *GroupAddress {
	members := set.New(set.ThreadSafe)
	for _, a := range addrs {
		members.Add(a)
	}
	sorted := make([]Address, 0, members.Size())
	members.Each(func(item interface{}) bool {
		sorted = append(sorted, item.(Address))
		return true
	})
	slices.Sort(sorted)
	return &GroupAddress{
		members: members,
		sorted:  sorted,
	}
}

func (*GroupAddress) isDestination() {}

func (g *GroupAddress) Size() int {
	return len(g.sorted)
}

func (g *GroupAddress) Contains(a Address) bool {
	return g.members.Has(a)
}

// Addresses returns the members in ascending order. The slice is a copy.
func (g *GroupAddress) Addresses() []Address {
	return slices.Clone(g.sorted)
}

func (g *GroupAddress) Equals(o *GroupAddress) bool {
	if g == o {
		return true
	}
	if g == nil || o == nil {
		return false
	}
	return g.members.IsEqual(o.members)
}

func (g *GroupAddress) String() string {
	parts := make([]string, 0, len(g.sorted))
	for _, a := range g.sorted {
		parts = append(parts, string(a))
	}
	return "{" + strings.Join(parts, ",") + "}"
}
