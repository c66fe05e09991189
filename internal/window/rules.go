package window

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Rules is the classification policy for one external chat client. The
// defaults match the desktop client this project was built against; every
// constant can be overridden from a YAML file because the client's window
// chrome changes between releases.
type Rules struct {
	ReceptionClass  string `yaml:"receptionClass"`
	ReceptionSuffix string `yaml:"receptionSuffix"`

	PopupClass     string `yaml:"popupClass"`
	PopupTitle     string `yaml:"popupTitle"`
	PopupMinWidth  int    `yaml:"popupMinWidth"`
	PopupMaxWidth  int    `yaml:"popupMaxWidth"`
	PopupMinHeight int    `yaml:"popupMinHeight"`
	PopupMaxHeight int    `yaml:"popupMaxHeight"`

	// RowHeight is the fixed height of one customer row in the popup list;
	// MaxCustomers is the largest count the popup can display.
	RowHeight    int `yaml:"rowHeight"`
	MaxCustomers int `yaml:"maxCustomers"`

	VirtualShopPrefix string `yaml:"virtualShopPrefix"`
	MatchWindowMS     int    `yaml:"matchWindowMs"`
}

// DefaultRules returns the built-in policy for the supported chat client.
func DefaultRules() *Rules {
	return &Rules{
		ReceptionClass:    "Qt5152QWindowIcon",
		ReceptionSuffix:   "-接待中心",
		PopupClass:        "Qt5152QWindowToolSaveBits",
		PopupTitle:        "消息提醒",
		PopupMinWidth:     380,
		PopupMaxWidth:     420,
		PopupMinHeight:    120,
		PopupMaxHeight:    540,
		RowHeight:         60,
		MaxCustomers:      8,
		VirtualShopPrefix: "virtualShop",
		MatchWindowMS:     300,
	}
}

// LoadRules reads rules from a YAML file layered over the defaults. An
// empty path returns the defaults unchanged.
func LoadRules(path string) (*Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	if err := yaml.Unmarshal(data, rules); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}
	return rules, nil
}

// MatchWindow is the maximum creation-time distance between a popup and a
// reception window for time-based matching.
func (r *Rules) MatchWindow() time.Duration {
	return time.Duration(r.MatchWindowMS) * time.Millisecond
}

// ReceptionShop reports whether w is a shop reception window and, if so,
// returns the shop name parsed from its title.
func (r *Rules) ReceptionShop(w Window) (string, bool) {
	if w.Class != r.ReceptionClass {
		return "", false
	}
	idx := strings.Index(w.Title, r.ReceptionSuffix)
	if idx < 0 {
		return "", false
	}
	shop := strings.TrimSpace(w.Title[:idx])
	if shop == "" {
		return "", false
	}
	return shop, true
}

// IsPopup reports whether w matches the customer-popup signature.
func (r *Rules) IsPopup(w Window) bool {
	return w.Class == r.PopupClass &&
		w.Title == r.PopupTitle &&
		w.Width >= r.PopupMinWidth && w.Width <= r.PopupMaxWidth &&
		w.Height >= r.PopupMinHeight && w.Height <= r.PopupMaxHeight
}

// CustomerCount converts a popup height to the number of customers it is
// showing. The popup renders one fixed-height row per customer plus a
// header row, and never more than MaxCustomers rows.
func (r *Rules) CustomerCount(height int) int {
	if height < r.PopupMinHeight {
		return 0
	}
	count := height/r.RowHeight - 1
	if count < 0 {
		count = 0
	}
	if count > r.MaxCustomers {
		count = r.MaxCustomers
	}
	return count
}
