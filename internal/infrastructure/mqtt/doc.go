// Package mqtt is the switch service's broker connection.
//
// One Client is shared by every switch. Several switches may watch the same
// feedback topic, so the Client keeps a single broker subscription per topic
// filter and fans each message out to the handlers registered on it. Each
// Subscribe call gets its own *Subscription; releasing the last one drops
// the broker subscription.
//
// The service announces itself on grayswitch/system/status: "online" after
// each connect, "offline" on Close, and the broker publishes the last will
// ("offline", unexpected_disconnect) if the process dies.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	sub, err := client.Subscribe("home/porch/state", 0, func(topic string, payload []byte) error {
//	    return nil
//	})
//	defer sub.Unsubscribe()
//
//	err = client.Publish("home/porch/set", []byte("ON"), 0, false)
package mqtt
