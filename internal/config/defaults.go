package config

func Defaults() *Config {
	return &Config{
		General: General{
			LogLevel: "info",
		},
		Relay: Relay{
			APIBase:    "http://localhost:8420",
			IdentityID: "veilbot",
		},
		Agent: Agent{
			Handles:          []string{"veilbot"},
			RepliesPerMinute: 30,
			DedupWindow:      1000,
			HistoryPerPair:   10,
			IdleMinutes:      30,
		},
		Collab: Collab{
			FkeyAPIBase: "https://api.fkey.id",
			PayAPIBase:  "https://pay.fkey.id",
		},
		AI: AI{
			Enabled: false,
			APIBase: "https://api.openai.com/v1",
			Model:   "gpt-4o-mini",
		},
		Store: Store{
			DBPath: "~/.veilbot/veilbot.db",
		},
		Ingest: Ingest{
			MaxRetries:    8,
			ResyncSeconds: 30,
		},
	}
}
