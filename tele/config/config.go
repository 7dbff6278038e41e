package tele_config

type Config struct { //nolint:maligned
	Enable       bool   `hcl:"enable"`
	MqttBroker   string `hcl:"mqtt_broker"`
	MqttUsername string `hcl:"mqtt_username"`
	MqttPassword string `hcl:"mqtt_password"`
	ClientID     string `hcl:"client_id"`
	// TopicPrefix defaults to ClientID.
	TopicPrefix  string `hcl:"topic_prefix"`
	KeepaliveSec int    `hcl:"keepalive_sec"`
	LogDebug     bool   `hcl:"log_debug"`
}

type MetricsConfig struct {
	// Textfile is rewritten after every fired action and source state change,
	// for node_exporter textfile collector.
	Textfile string `hcl:"textfile"`
}
