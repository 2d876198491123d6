package models

// All lists every model managed by the API, in migration order
func All() []interface{} {
	return []interface{}{
		&Customer{},
		&SalesOrder{},
		&BOM{},
		&Order{},
		&Phase{},
		&Communication{},
		&Attachment{},
	}
}
