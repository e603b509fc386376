package models

// Nullable is one field of a partial update. The zero value leaves the
// stored field untouched; Null clears it; Value overwrites it.
type Nullable[T any] struct {
	Set   bool
	Valid bool
	Value T
}

func Value[T any](v T) Nullable[T] {
	return Nullable[T]{Set: true, Valid: true, Value: v}
}

func Null[T any]() Nullable[T] {
	return Nullable[T]{Set: true}
}

// ValueOrNull maps an empty string to Null.
func ValueOrNull(v string) Nullable[string] {
	if v == "" {
		return Null[string]()
	}
	return Value(v)
}

func (n Nullable[T]) ptr() *T {
	if !n.Valid {
		return nil
	}
	v := n.Value
	return &v
}

func (n Nullable[T]) field() any {
	if !n.Valid {
		return nil
	}
	return n.Value
}

// SubscriptionPatch is a last-write-wins partial merge into a SubscriptionRecord.
type SubscriptionPatch struct {
	Tier           Nullable[Tier]
	Status         Nullable[Status]
	SubscriptionID Nullable[string]
	PlanType       Nullable[PlanType]
	CustomerID     Nullable[string]
	EndDate        Nullable[int64]
}

// Apply returns r with the patch merged in.
func (p SubscriptionPatch) Apply(r SubscriptionRecord) SubscriptionRecord {
	if p.Tier.Set {
		r.Tier = p.Tier.Value
		if !p.Tier.Valid {
			r.Tier = TierFree
		}
	}
	if p.Status.Set {
		r.Status = p.Status.Value
		if !p.Status.Valid {
			r.Status = StatusNone
		}
	}
	if p.SubscriptionID.Set {
		r.SubscriptionID = p.SubscriptionID.ptr()
	}
	if p.PlanType.Set {
		r.PlanType = p.PlanType.ptr()
	}
	if p.CustomerID.Set {
		r.CustomerID = p.CustomerID.ptr()
	}
	if p.EndDate.Set {
		r.EndDate = p.EndDate.ptr()
	}
	return r
}

// Fields returns the document fields touched by the patch. Cleared fields map
// to nil so document stores write an explicit null.
func (p SubscriptionPatch) Fields() map[string]any {
	out := make(map[string]any, 6)
	if p.Tier.Set {
		out[FieldTier] = p.Tier.field()
	}
	if p.Status.Set {
		out[FieldStatus] = p.Status.field()
	}
	if p.SubscriptionID.Set {
		out[FieldSubscriptionID] = p.SubscriptionID.field()
	}
	if p.PlanType.Set {
		out[FieldPlanType] = p.PlanType.field()
	}
	if p.CustomerID.Set {
		out[FieldCustomerID] = p.CustomerID.field()
	}
	if p.EndDate.Set {
		out[FieldEndDate] = p.EndDate.field()
	}
	return out
}

func (p SubscriptionPatch) IsEmpty() bool {
	return !p.Tier.Set && !p.Status.Set && !p.SubscriptionID.Set &&
		!p.PlanType.Set && !p.CustomerID.Set && !p.EndDate.Set
}
