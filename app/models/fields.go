package models

// RecordFromFields decodes a profile document. Unknown fields are ignored and
// numeric end dates are accepted as integers or doubles, since web clients
// write plain JavaScript numbers.
func RecordFromFields(data map[string]any) SubscriptionRecord {
	r := SubscriptionRecord{
		Tier:   Tier(stringField(data, FieldTier)),
		Status: Status(stringField(data, FieldStatus)),
	}
	if v := stringField(data, FieldSubscriptionID); v != "" {
		r.SubscriptionID = &v
	}
	if v := stringField(data, FieldPlanType); v != "" {
		pt := PlanType(v)
		r.PlanType = &pt
	}
	if v := stringField(data, FieldCustomerID); v != "" {
		r.CustomerID = &v
	}
	if v, ok := int64Field(data, FieldEndDate); ok {
		r.EndDate = &v
	}
	return r.Normalize()
}

func stringField(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}

func int64Field(data map[string]any, key string) (int64, bool) {
	switch v := data[key].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case float64:
		return int64(v), true
	default:
		return 0, false
	}
}
