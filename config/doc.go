// Package config loads the semwidgets service configuration.
//
// Configuration is layered: built-in defaults, then each file added with
// AddLayer (JSON, or YAML for .yaml/.yml), then environment variables with the
// SEMWIDGETS_ prefix. A later layer only overrides the keys it sets, so a
// production file can carry just the values that differ.
//
// # Basic Usage
//
//	loader := config.NewLoader()
//	loader.AddLayer("configs/base.yaml")
//	loader.AddLayer("configs/production.json")
//	loader.EnableValidation(true)
//
//	cfg, err := loader.Load()
//	if err != nil {
//		log.Fatal(err)
//	}
//
// Durations accept Go duration strings ("250ms", "5m"), a day suffix ("2d"),
// or a bare number of milliseconds.
//
// # Environment Overrides
//
//	SEMWIDGETS_NATS_URL            nats.url
//	SEMWIDGETS_NATS_ENABLED        nats.enabled
//	SEMWIDGETS_NATS_TOKEN          nats.token
//	SEMWIDGETS_GATEWAY_PORT        gateway.port
//	SEMWIDGETS_METRICS_PORT        metrics.port
//	SEMWIDGETS_HTTP_BASE_URL       http.base_url
//	SEMWIDGETS_FILES_BASE_DIR      files.base_dir
//	SEMWIDGETS_STORE_MODE          store.mode
//	SEMWIDGETS_REDIS_ADDR          redis.addr
//	SEMWIDGETS_REDIS_PASSWORD      redis.password
//	SEMWIDGETS_WAREHOUSE_EXPIRY    warehouse.expiry
//	SEMWIDGETS_FLOW_DEBOUNCE       flow.debounce
package config
