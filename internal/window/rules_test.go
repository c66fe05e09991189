package window

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReceptionShop(t *testing.T) {
	rules := DefaultRules()

	tests := []struct {
		name     string
		window   Window
		wantShop string
		wantOK   bool
	}{
		{
			name:     "reception window with shop name",
			window:   Window{Class: "Qt5152QWindowIcon", Title: "旗舰店-接待中心"},
			wantShop: "旗舰店",
			wantOK:   true,
		},
		{
			name:     "shop name is trimmed",
			window:   Window{Class: "Qt5152QWindowIcon", Title: "  myshop -接待中心"},
			wantShop: "myshop",
			wantOK:   true,
		},
		{
			name:   "wrong class",
			window: Window{Class: "Chrome_WidgetWin_1", Title: "旗舰店-接待中心"},
			wantOK: false,
		},
		{
			name:   "missing suffix",
			window: Window{Class: "Qt5152QWindowIcon", Title: "旗舰店"},
			wantOK: false,
		},
		{
			name:   "empty shop name",
			window: Window{Class: "Qt5152QWindowIcon", Title: "-接待中心"},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shop, ok := rules.ReceptionShop(tt.window)
			if ok != tt.wantOK {
				t.Fatalf("expected ok=%v, got %v", tt.wantOK, ok)
			}
			if shop != tt.wantShop {
				t.Errorf("expected shop %q, got %q", tt.wantShop, shop)
			}
		})
	}
}

func TestIsPopup(t *testing.T) {
	rules := DefaultRules()

	popup := Window{Class: "Qt5152QWindowToolSaveBits", Title: "消息提醒", Width: 400, Height: 300}
	if !rules.IsPopup(popup) {
		t.Error("expected popup signature to match")
	}

	tests := []struct {
		name   string
		window Window
	}{
		{"wrong title", Window{Class: popup.Class, Title: "notification", Width: 400, Height: 300}},
		{"too narrow", Window{Class: popup.Class, Title: popup.Title, Width: 379, Height: 300}},
		{"too wide", Window{Class: popup.Class, Title: popup.Title, Width: 421, Height: 300}},
		{"too short", Window{Class: popup.Class, Title: popup.Title, Width: 400, Height: 119}},
		{"too tall", Window{Class: popup.Class, Title: popup.Title, Width: 400, Height: 541}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rules.IsPopup(tt.window) {
				t.Error("expected popup signature not to match")
			}
		})
	}
}

func TestCustomerCount(t *testing.T) {
	rules := DefaultRules()

	tests := []struct {
		height int
		want   int
	}{
		{0, 0},
		{119, 0},  // below popup minimum
		{120, 1},  // smallest popup shows one customer
		{180, 2},
		{300, 4},
		{540, 8},
		{600, 8},  // clamped at the row maximum
		{1200, 8},
	}
	for _, tt := range tests {
		if got := rules.CustomerCount(tt.height); got != tt.want {
			t.Errorf("CustomerCount(%d) = %d, want %d", tt.height, got, tt.want)
		}
	}
}

func TestLoadRulesOverlay(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	content := "rowHeight: 50\nmaxCustomers: 10\nvirtualShopPrefix: shop\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules failed: %v", err)
	}

	if rules.RowHeight != 50 {
		t.Errorf("expected rowHeight 50, got %d", rules.RowHeight)
	}
	if rules.MaxCustomers != 10 {
		t.Errorf("expected maxCustomers 10, got %d", rules.MaxCustomers)
	}
	if rules.VirtualShopPrefix != "shop" {
		t.Errorf("expected virtualShopPrefix shop, got %s", rules.VirtualShopPrefix)
	}
	// Untouched fields keep their defaults.
	if rules.PopupMinWidth != 380 {
		t.Errorf("expected default popupMinWidth 380, got %d", rules.PopupMinWidth)
	}
}

func TestLoadRulesEmptyPath(t *testing.T) {
	rules, err := LoadRules("")
	if err != nil {
		t.Fatalf("LoadRules(\"\") failed: %v", err)
	}
	if rules.ReceptionClass != DefaultRules().ReceptionClass {
		t.Error("expected defaults for empty path")
	}
}

func TestStaticSnapshotter(t *testing.T) {
	s := NewStaticSnapshotter(Window{Handle: 1, Visible: true})

	windows, err := s.Snapshot()
	if err != nil {
		t.Fatalf("snapshot failed: %v", err)
	}
	if len(windows) != 1 {
		t.Fatalf("expected 1 window, got %d", len(windows))
	}

	s.Fail(os.ErrDeadlineExceeded)
	if _, err := s.Snapshot(); err == nil {
		t.Error("expected snapshot error after Fail")
	}

	s.Set()
	windows, err = s.Snapshot()
	if err != nil {
		t.Fatalf("snapshot failed after Set: %v", err)
	}
	if len(windows) != 0 {
		t.Errorf("expected empty snapshot, got %d windows", len(windows))
	}
}
