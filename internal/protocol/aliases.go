package protocol

// Controllers across firmware revisions have drifted on field names. Each
// logical field has an ordered alias list; the first populated alias wins.
// Resolution happens here, at the decode boundary, so the rest of the client
// only ever sees canonical names.
var (
	typeAliases        = []string{"type", "msg_type"}
	nodeIDAliases      = []string{"node_id", "node", "component"}
	detailAliases      = []string{"detail", "fault_type"}
	textAliases        = []string{"text", "message"}
	heartbeatAliases   = []string{"heartbeat", "hb", "health"}
	temperatureAliases = []string{"temp_c", "temp"}
)

// ResolveMetrics maps a raw metrics object to canonical metric samples.
// Unresolvable or non-numeric values become gaps, never errors.
func ResolveMetrics(raw map[string]interface{}) Metrics {
	return Metrics{
		Heartbeat:   resolveSample(raw, heartbeatAliases),
		Temperature: resolveSample(raw, temperatureAliases),
	}
}

// resolveSample returns the first alias that holds a numeric value.
func resolveSample(raw map[string]interface{}, aliases []string) Sample {
	for _, key := range aliases {
		if v, ok := numberValue(raw[key]); ok {
			return Number(v)
		}
	}
	return Gap()
}

// stringField returns the first alias that holds a non-empty string.
func stringField(raw map[string]interface{}, aliases ...string) string {
	for _, key := range aliases {
		if s, ok := raw[key].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

// numberField returns the named field as a float64 if it is numeric.
func numberField(raw map[string]interface{}, key string) (float64, bool) {
	return numberValue(raw[key])
}

// numberValue coerces a decoded JSON value to float64.
// encoding/json decodes all JSON numbers as float64, but controllers have
// been seen sending numerics as strings; those are not accepted here.
func numberValue(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
