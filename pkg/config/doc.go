// Package config loads the device id service configuration from the environment.
//
// Values are read with cleanenv from DEVICEID_* variables; LoadEnvFile can pre-populate
// them from a .env file. Server address and port come from chi-demo's APP_HOST and
// APP_PORT.
package config
