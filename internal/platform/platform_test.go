package platform

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		expected Platform
		wantURL  string
		wantOK   bool
	}{
		{
			name:     "instagram post url embedded in prose",
			text:     "check this out https://www.instagram.com/p/Cxyz123/ so cool",
			expected: Instagram,
			wantURL:  "https://www.instagram.com/p/Cxyz123/",
			wantOK:   true,
		},
		{
			name:     "scheme optional",
			text:     "instagram.com/reel/abc",
			expected: Instagram,
			wantURL:  "instagram.com/reel/abc",
			wantOK:   true,
		},
		{
			name:     "www optional",
			text:     "https://instagram.com/p/abc",
			expected: Instagram,
			wantURL:  "https://instagram.com/p/abc",
			wantOK:   true,
		},
		{
			name:     "wrong platform selected yields no match",
			text:     "https://www.instagram.com/p/Cxyz123/",
			expected: YouTube,
			wantOK:   false,
		},
		{
			name:     "unrelated url yields no match",
			text:     "https://example.com/video",
			expected: Instagram,
			wantOK:   false,
		},
		{
			name:     "lookalike host yields no match",
			text:     "see https://notinstagram.com/p/abc for details",
			expected: Instagram,
			wantOK:   false,
		},
		{
			name:     "lookalike subdomain yields no match",
			text:     "evil.instagram.com/p/abc",
			expected: Instagram,
			wantOK:   false,
		},
		{
			name:     "lookalike youtube host yields no match",
			text:     "https://fakeyoutu.be/dQw4w9WgXcQ",
			expected: YouTube,
			wantOK:   false,
		},
		{
			name:     "youtube short host",
			text:     "https://youtu.be/dQw4w9WgXcQ",
			expected: YouTube,
			wantURL:  "https://youtu.be/dQw4w9WgXcQ",
			wantOK:   true,
		},
		{
			name:     "soundcloud track",
			text:     "listen: soundcloud.com/artist/track",
			expected: SoundCloud,
			wantURL:  "soundcloud.com/artist/track",
			wantOK:   true,
		},
		{
			name:     "no url at all",
			text:     "hello there",
			expected: Instagram,
			wantOK:   false,
		},
		{
			name:     "unknown platform",
			text:     "https://instagram.com/p/abc",
			expected: Platform("myspace"),
			wantOK:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url, ok := Classify(tt.text, tt.expected)
			if ok != tt.wantOK {
				t.Fatalf("Classify() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && url != tt.wantURL {
				t.Errorf("Classify() url = %q, want %q", url, tt.wantURL)
			}
		})
	}
}

func TestPlatformRegistry(t *testing.T) {
	for _, p := range All() {
		if !p.Valid() {
			t.Errorf("platform %q should be valid", p)
		}
		if p.DisplayName() == "" {
			t.Errorf("platform %q has no display name", p)
		}
		if p.DefaultDailyLimit() <= 0 {
			t.Errorf("platform %q has no default daily limit", p)
		}
	}

	if Platform("myspace").Valid() {
		t.Error("unknown platform should not be valid")
	}
}
