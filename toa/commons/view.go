package commons

import "golang.org/x/exp/slices"

type View struct {
	ID      uint64
	Members []Address
}

func (v View) Contains(a Address) bool {
	return slices.Contains(v.Members, a)
}
