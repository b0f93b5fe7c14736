package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestCatalogsAreComplete(t *testing.T) {
	assert.Empty(t, Default().MissingKeys(Arabic))
}

func TestTranslate(t *testing.T) {
	assert.Equal(t, "Incorrect email or password.", T(English, "error.invalid_credentials"))
	assert.Equal(t, "البريد الإلكتروني أو كلمة المرور غير صحيحة.", T(Arabic, "error.invalid_credentials"))
	assert.Equal(t, "Please wait 42 seconds before requesting another code.", T("en-GB", "error.otp_resend_too_soon", 42))
}

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"ar":    Arabic,
		"ar-SA": Arabic,
		"EN":    English,
		"fr":    English,
		"":      English,
		"!!":    English,
	}
	for in, want := range cases {
		assert.Equal(t, want, Normalize(in), in)
	}
}

func TestResolveTagPrecedence(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		cookie  string
		accept  string
		want    language.Tag
		persist bool
	}{
		{name: "query wins", url: "/?lang=ar", cookie: "en", accept: "en", want: language.Arabic, persist: true},
		{name: "cookie", url: "/", cookie: "ar", accept: "en", want: language.Arabic},
		{name: "accept language", url: "/", accept: "ar-SA,ar;q=0.9,en;q=0.8", want: language.Arabic},
		{name: "unsupported accept", url: "/", accept: "fr-FR", want: language.English},
		{name: "invalid query falls through", url: "/?lang=xx-invalid-", cookie: "ar", want: language.Arabic},
		{name: "default", url: "/", want: language.English},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tc.url, nil)
			if tc.cookie != "" {
				r.AddCookie(&http.Cookie{Name: LangCookieName, Value: tc.cookie})
			}
			if tc.accept != "" {
				r.Header.Set("Accept-Language", tc.accept)
			}
			got, persist := ResolveTag(r)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.persist, persist)
		})
	}
}

func TestSetLanguageCookie(t *testing.T) {
	w := httptest.NewRecorder()
	SetLanguageCookie(w, language.Arabic)
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, "ar", cookies[0].Value)
}

func TestContextLanguage(t *testing.T) {
	assert.Equal(t, English, FromContext(context.Background()))
	assert.Equal(t, Arabic, FromContext(WithLang(context.Background(), "ar-SA")))
}

func TestLoadFromFSRejectsMismatchedLocale(t *testing.T) {
	fsys := fstest.MapFS{
		"locales/en/x.yaml": {Data: []byte("locale: ar\nnamespace: x\nmessages:\n  a: b\n")},
	}
	_, err := LoadFromFS(fsys)
	assert.Error(t, err)
}

func TestFormatTimeUsesRiyadhTime(t *testing.T) {
	assert.Equal(t, "2025-05-01 13:00", FormatTime(time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)))
}
