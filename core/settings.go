package core

// Theme selects the client colour scheme.
type Theme string

const (
	ThemeLight Theme = "light"
	ThemeDark  Theme = "dark"
	ThemeAuto  Theme = "auto"
)

// AppSettings holds user preferences applied to new requests.
type AppSettings struct {
	APIKey           string  `json:"api_key,omitempty"`
	Theme            Theme   `json:"theme"`
	Model            string  `json:"model"`
	Temperature      float64 `json:"temperature"`
	SystemPrompt     string  `json:"system_prompt,omitempty"`
	SidebarCollapsed bool    `json:"sidebar_collapsed"`
	WindowWidth      int     `json:"window_width,omitempty"`
	WindowHeight     int     `json:"window_height,omitempty"`
}

// DefaultSettings returns the settings used before any are saved.
func DefaultSettings() AppSettings {
	return AppSettings{
		Theme:       ThemeDark,
		Model:       "gpt-4",
		Temperature: 0.7,
	}
}
