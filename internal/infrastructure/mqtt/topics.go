package mqtt

import "strings"

// Channel suffixes under the device namespace. The device firmware uses
// Portuguese topic names.
const (
	SuffixTemperature = "temperatura"
	SuffixHumidity    = "umidade"
	SuffixCommand     = "comando"
)

// Topics provides builders for the monitored device's MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.NewTopics("climatizador")
//	topics.Temperature() // "climatizador/temperatura"
type Topics struct {
	namespace string
}

// NewTopics returns topic builders rooted at namespace. Leading and
// trailing slashes are ignored.
func NewTopics(namespace string) Topics {
	return Topics{namespace: strings.Trim(namespace, "/")}
}

// Namespace returns the normalised namespace.
func (t Topics) Namespace() string {
	return t.namespace
}

// Temperature returns the inbound temperature topic.
func (t Topics) Temperature() string {
	return t.namespace + "/" + SuffixTemperature
}

// Humidity returns the inbound humidity topic.
func (t Topics) Humidity() string {
	return t.namespace + "/" + SuffixHumidity
}

// Command returns the outbound command topic.
func (t Topics) Command() string {
	return t.namespace + "/" + SuffixCommand
}
