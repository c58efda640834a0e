package bus

import "strings"

// ToSubject translates a slash-delimited MQTT-style topic (with `#`
// and `+` wildcards) into a NATS subject (dot-delimited, `>` and `*`
// wildcards). office/{zone}/sensor/# -> office.{zone}.sensor.>
func ToSubject(topic string) string {
	parts := strings.Split(topic, "/")
	for i, p := range parts {
		switch p {
		case "#":
			parts[i] = ">"
		case "+":
			parts[i] = "*"
		}
	}
	return strings.Join(parts, ".")
}

// FromSubject translates a NATS subject back into slash topic form. It
// is the inverse of ToSubject for concrete (non-wildcard) subjects
// — the form every publish and every delivered message uses.
func FromSubject(subject string) string {
	return strings.ReplaceAll(subject, ".", "/")
}
