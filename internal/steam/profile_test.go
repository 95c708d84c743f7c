package steam

import "testing"

func TestValidProfileURL(t *testing.T) {
	valid := []string{
		"https://steamcommunity.com/id/gabelogannewell",
		"https://steamcommunity.com/profiles/76561197960287930",
		"https://www.steamcommunity.com/id/some_user",
		"HTTPS://STEAMCOMMUNITY.COM/ID/LOUD",
		"http://steamcommunity.com/profiles/7656119",
		"  https://steamcommunity.com/id/padded  ",
		"https://steamcommunity.com/id/dotted.name",
	}
	for _, s := range valid {
		if !ValidProfileURL(s) {
			t.Errorf("expected valid: %q", s)
		}
	}

	invalid := []string{
		"",
		"+",
		"steamcommunity.com/id/noscheme",
		"https://steamcommunity.com/groups/valve",
		"https://store.steampowered.com/id/abc",
		"https://steamcommunity.com/id/",
		"https://steamcommunity.com/id/abc def",
		"just some text",
	}
	for _, s := range invalid {
		if ValidProfileURL(s) {
			t.Errorf("expected invalid: %q", s)
		}
	}
}
