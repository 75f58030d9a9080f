package postgres

// nullable maps a possibly-empty string onto a *string for columns that are
// NULL-able, so an unset optional field is stored as SQL NULL rather than
// an empty string sentinel.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func orEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
