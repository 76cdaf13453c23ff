package config

import "github.com/spf13/viper"

// Settings is the server configuration resolved from flags,
// config.yaml, and environment variables, in that order of
// precedence via viper.
type Settings struct {
	Port        int
	DatabaseURL string
	STTURL      string
	STTAPIKey   string
	MockSTT     bool
	WSURL       string
	APIURL      string
}

func Load() Settings {
	return Settings{
		Port:        viper.GetInt("port"),
		DatabaseURL: viper.GetString("database_url"),
		STTURL:      viper.GetString("stt_url"),
		STTAPIKey:   viper.GetString("stt_api_key"),
		MockSTT:     viper.GetBool("mock_stt"),
		WSURL:       viper.GetString("ws_url"),
		APIURL:      viper.GetString("api_url"),
	}
}

// UseMockSTT reports whether the scripted transcription engine should
// run: either explicitly requested or no real endpoint is configured.
func (s Settings) UseMockSTT() bool {
	return s.MockSTT || s.STTURL == ""
}

// UsePostgres reports whether call state should persist to Postgres
// rather than the in-memory store.
func (s Settings) UsePostgres() bool {
	return s.DatabaseURL != ""
}
