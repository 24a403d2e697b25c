// Package config loads config.yaml for the switch service.
//
// Values are layered: built-in defaults, then the YAML file, then
// GRAYSWITCH_* environment variables (GRAYSWITCH_MQTT_PASSWORD,
// GRAYSWITCH_INFLUXDB_TOKEN and GRAYSWITCH_REDIS_PASSWORD keep secrets out of
// the file). Validate reports every problem in one error.
//
//	cfg, err := config.Load("configs/config.yaml")
//	if err != nil {
//	    return err
//	}
//	for _, sw := range cfg.Switches {
//	    fmt.Println(sw.EffectiveID(), sw.CommandTopic)
//	}
package config
