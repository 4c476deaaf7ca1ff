// Package mqtt provides the MQTT client used by the facility service.
//
// Sensor controllers publish readings to facility/ingest/<source>; the
// ingest subscriber consumes them through IngestReadings. Every accepted
// event is republished on facility/devices/<uuid>/events. A retained
// status document on facility/system/status, backed by a last will,
// reports whether the service is online.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topics{}.IngestReadings(), 1,
//	    func(topic string, payload []byte) error {
//	        return handle(payload)
//	    })
//
// Use TLS (mqtt.broker.tls) outside local development.
package mqtt
