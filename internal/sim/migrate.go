package sim

// MigrateBody converts one fenced block body from the legacy schema to
// the canonical envelope. Already-canonical bodies come back unchanged
// (changed=false) so bulk migration can run repeatedly without touching
// message text it already converted. Parse failures surface as errors;
// the caller decides whether to count or abort.
func MigrateBody(body string) (out string, changed bool, err error) {
	om, err := Decode(body)
	if err != nil {
		return "", false, err
	}
	if DetectFormat(om) == FormatCanonical {
		return body, false, nil
	}

	doc, err := Normalize(om)
	if err != nil {
		return "", false, err
	}
	out, err = doc.MarshalCanonical()
	if err != nil {
		return "", false, err
	}
	return out, true, nil
}
