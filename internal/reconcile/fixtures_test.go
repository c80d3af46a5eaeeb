package reconcile

import "github.com/roach88/bizsync/internal/entity"

type customer struct {
	entity.Base
	Name   string
	Orders []*order
}

type order struct {
	entity.Base
	Number   string
	Customer *customer
}

func newCustomer(alt, name string) *customer {
	return &customer{Base: entity.Base{AltID: alt}, Name: name}
}

func newOrder(alt, number string) *order {
	return &order{Base: entity.Base{AltID: alt}, Number: number}
}

// newMergers wires the customer and order mergers to each other.
func newMergers() (*Merger[*customer], *Merger[*order]) {
	cm := &Merger[*customer]{
		Kind: "customer",
		New:  func() *customer { return &customer{} },
		CopyFields: func(dst, src *customer) {
			dst.Name = src.Name
		},
	}
	om := &Merger[*order]{
		Kind: "order",
		New:  func() *order { return &order{} },
		CopyFields: func(dst, src *order) {
			dst.Number = src.Number
		},
	}
	cm.MergeChildren = func(v *Visited, dst, src *customer) error {
		orders, _, err := om.SyncList(v, dst.Orders, src.Orders)
		if err != nil {
			return err
		}
		dst.Orders = orders
		return nil
	}
	om.MergeChildren = func(v *Visited, dst, src *order) error {
		c, err := cm.Sync(v, dst.Customer, src.Customer)
		if err != nil {
			return err
		}
		dst.Customer = c
		return nil
	}
	return cm, om
}

func names(cs []*customer) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Name
	}
	return out
}

func alts(cs []*customer) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.AltID
	}
	return out
}
