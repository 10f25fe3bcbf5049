package messages

import "strings"

const (
	UpdateTopicTmpl      = "$aws/things/{thing}/shadow/update"
	DeltaTopicTmpl       = "$aws/things/{thing}/shadow/update/delta"
	GetTopicTmpl         = "$aws/things/{thing}/shadow/get"
	GetAcceptedTopicTmpl = "$aws/things/{thing}/shadow/get/accepted"
	GetRejectedTopicTmpl = "$aws/things/{thing}/shadow/get/rejected"
)

// FormatTopic replaces the {thing} placeholder.
func FormatTopic(tmpl, thing string) string {
	return strings.ReplaceAll(tmpl, "{thing}", thing)
}

// ThingFromTopic extracts the thing name from a $aws/things/{thing}/... topic.
func ThingFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[0] != "$aws" || parts[1] != "things" {
		return ""
	}
	return parts[2]
}
