package usecase

import "testing"

func TestDetectLanguage(t *testing.T) {
	cases := []struct {
		name string
		text string
		want string
	}{
		{name: "english", text: "What is the R-ICU component?", want: "en"},
		{name: "korean", text: "R-ICU는 무엇인가요?", want: "ko"},
		{name: "korean with identifiers", text: "FuncR_S110 요구사항을 검증하는 테스트 케이스는?", want: "ko"},
		{name: "mostly english with a korean word", text: "Explain the launch requirement FuncR_S110 for the 발사 phase of the mission", want: "en"},
		{name: "empty", text: "", want: "en"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := DetectLanguage(tc.text); got != tc.want {
				t.Errorf("DetectLanguage(%q) = %q, want %q", tc.text, got, tc.want)
			}
		})
	}
}
