package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"sktutorials_go/config"
	"sktutorials_go/database"
	"sktutorials_go/models"
	"sktutorials_go/services/fees"

	"gorm.io/gorm"
)

const (
	ChannelWhatsApp = "whatsapp"
	ChannelLine     = "line"

	defaultInstituteName = "SK Tutorials"
)

var (
	allowedChannels = map[string]struct{}{
		ChannelWhatsApp: {},
		ChannelLine:     {},
	}

	// ErrSettingsValidation indicates a user-facing validation error while updating settings
	ErrSettingsValidation = errors.New("settings validation error")
)

// SettingsInternalError wraps server-side failures with a short machine code
// so the controller can surface a stable code while hiding internals.
type SettingsInternalError struct {
	Code string
	Err  error
}

func (e *SettingsInternalError) Error() string { return e.Err.Error() }
func (e *SettingsInternalError) Unwrap() error { return e.Err }

// UpdateSettingsInput lists the institute settings an admin may change.
// Nil fields are left alone.
type UpdateSettingsInput struct {
	InstituteName    *string  `json:"institute_name"`
	CurrencySymbol   *string  `json:"currency_symbol"`
	ReminderTemplate *string  `json:"reminder_template"`
	RemindersEnabled *bool    `json:"reminders_enabled"`
	ReminderChannels []string `json:"reminder_channels"`
}

// SettingsDTO is the API view of the settings row.
type SettingsDTO struct {
	InstituteName    string   `json:"institute_name"`
	CurrencySymbol   string   `json:"currency_symbol"`
	ReminderTemplate string   `json:"reminder_template"`
	RemindersEnabled bool     `json:"reminders_enabled"`
	ReminderChannels []string `json:"reminder_channels"`
	Placeholders     []string `json:"placeholders"`
}

// ReminderSettings is what the reminder run needs from settings.
type ReminderSettings struct {
	Template string
	Currency string
	Enabled  bool
	Channels []string
}

// SettingsService manages the single institute settings row.
type SettingsService struct {
	db *gorm.DB
}

func NewSettingsService() *SettingsService {
	return &SettingsService{db: database.GetDB()}
}

func defaultSettings() models.InstituteSettings {
	currency := fees.DefaultCurrency
	if config.AppConfig != nil && config.AppConfig.CurrencySymbol != "" {
		currency = config.AppConfig.CurrencySymbol
	}
	channels, _ := json.Marshal([]string{ChannelWhatsApp, ChannelLine})
	return models.InstituteSettings{
		InstituteName:    defaultInstituteName,
		CurrencySymbol:   currency,
		ReminderTemplate: fees.DefaultReminderTemplate,
		RemindersEnabled: true,
		ReminderChannels: channels,
	}
}

// GetOrCreate returns the settings row, creating defaults on first use.
func (s *SettingsService) GetOrCreate(ctx context.Context) (*models.InstituteSettings, error) {
	settings := &models.InstituteSettings{}
	err := s.db.WithContext(ctx).Order("id ASC").First(settings).Error
	if err == nil {
		return settings, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &SettingsInternalError{Code: "SETTINGS_LOAD_FAILED", Err: err}
	}
	defaults := defaultSettings()
	if err := s.db.WithContext(ctx).Create(&defaults).Error; err != nil {
		return nil, &SettingsInternalError{Code: "SETTINGS_CREATE_FAILED", Err: err}
	}
	return &defaults, nil
}

// Update validates input and writes the changed columns.
func (s *SettingsService) Update(ctx context.Context, input UpdateSettingsInput) (*models.InstituteSettings, error) {
	settings, err := s.GetOrCreate(ctx)
	if err != nil {
		return nil, err
	}
	updates, err := buildSettingsUpdates(input)
	if err != nil {
		return nil, err
	}
	if len(updates) == 0 {
		return settings, nil
	}
	if err := s.db.WithContext(ctx).Model(settings).Updates(updates).Error; err != nil {
		return nil, &SettingsInternalError{Code: "SETTINGS_UPDATE_FAILED", Err: err}
	}
	if err := s.db.WithContext(ctx).First(settings, settings.ID).Error; err != nil {
		return nil, &SettingsInternalError{Code: "SETTINGS_RELOAD_FAILED", Err: err}
	}
	return settings, nil
}

func buildSettingsUpdates(input UpdateSettingsInput) (map[string]interface{}, error) {
	updates := map[string]interface{}{}

	if input.InstituteName != nil {
		name := strings.TrimSpace(*input.InstituteName)
		if name == "" {
			return nil, validationError("institute_name cannot be empty")
		}
		updates["institute_name"] = name
	}
	if input.CurrencySymbol != nil {
		sym := strings.TrimSpace(*input.CurrencySymbol)
		if sym == "" || len([]rune(sym)) > 5 {
			return nil, validationError("currency_symbol must be 1 to 5 characters")
		}
		updates["currency_symbol"] = sym
	}
	if input.ReminderTemplate != nil {
		tpl := strings.TrimSpace(*input.ReminderTemplate)
		if err := validateTemplate(tpl); err != nil {
			return nil, err
		}
		updates["reminder_template"] = tpl
	}
	if input.RemindersEnabled != nil {
		updates["reminders_enabled"] = *input.RemindersEnabled
	}
	if input.ReminderChannels != nil {
		channels, err := normalizeChannels(input.ReminderChannels)
		if err != nil {
			return nil, err
		}
		b, _ := json.Marshal(channels)
		updates["reminder_channels"] = models.JSON(b)
	}
	return updates, nil
}

// validateTemplate requires the placeholders every reminder must carry.
func validateTemplate(tpl string) error {
	if tpl == "" {
		return validationError("reminder_template cannot be empty")
	}
	for _, ph := range []string{"{name}", "{due}"} {
		if !strings.Contains(tpl, ph) {
			return validationError(fmt.Sprintf("reminder_template must contain %s", ph))
		}
	}
	return nil
}

func normalizeChannels(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	seen := map[string]struct{}{}
	for _, ch := range in {
		ch = strings.ToLower(strings.TrimSpace(ch))
		if _, ok := allowedChannels[ch]; !ok {
			return nil, validationError(fmt.Sprintf("unsupported reminder channel '%s'", ch))
		}
		if _, dup := seen[ch]; dup {
			continue
		}
		seen[ch] = struct{}{}
		out = append(out, ch)
	}
	return out, nil
}

func decodeChannels(data models.JSON) []string {
	if data.IsNull() {
		return []string{}
	}
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return []string{}
	}
	out, err := normalizeChannels(raw)
	if err != nil {
		return []string{}
	}
	return out
}

func (s *SettingsService) BuildDTO(settings *models.InstituteSettings) SettingsDTO {
	return SettingsDTO{
		InstituteName:    settings.InstituteName,
		CurrencySymbol:   settings.CurrencySymbol,
		ReminderTemplate: settings.ReminderTemplate,
		RemindersEnabled: settings.RemindersEnabled,
		ReminderChannels: decodeChannels(settings.ReminderChannels),
		Placeholders:     []string{"{name}", "{due}", "{currency}", "{course}"},
	}
}

// ReminderSettings loads the settings the reminder run depends on.
func (s *SettingsService) ReminderSettings(ctx context.Context) (ReminderSettings, error) {
	settings, err := s.GetOrCreate(ctx)
	if err != nil {
		return ReminderSettings{}, err
	}
	return reminderSettingsOf(settings), nil
}

func reminderSettingsOf(settings *models.InstituteSettings) ReminderSettings {
	rs := ReminderSettings{
		Template: settings.ReminderTemplate,
		Currency: settings.CurrencySymbol,
		Enabled:  settings.RemindersEnabled,
		Channels: decodeChannels(settings.ReminderChannels),
	}
	if rs.Template == "" {
		rs.Template = fees.DefaultReminderTemplate
	}
	if rs.Currency == "" {
		rs.Currency = fees.DefaultCurrency
	}
	return rs
}

func validationError(message string) error {
	return fmt.Errorf("%w: %s", ErrSettingsValidation, message)
}
