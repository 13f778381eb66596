package i18n

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"
)

func TestLocale_T(t *testing.T) {
	tests := []struct {
		tag  language.Tag
		key  string
		want string
	}{
		{language.English, "step5.play", "Play"},
		{language.Japanese, "step5.play", "再生"},
		{language.Korean, "common.undo", "실행 취소"},
		{language.Chinese, "common.redo", "重做"},
		{language.Japanese, "appTitle", "AI音楽ビデオクリエーター"},
	}
	for _, tt := range tests {
		t.Run(tt.tag.String()+"/"+tt.key, func(t *testing.T) {
			assert.Equal(t, tt.want, New(tt.tag).T(tt.key))
		})
	}
}

func TestLocale_MissingKeyReturnsKey(t *testing.T) {
	loc := New(language.Japanese)
	assert.Equal(t, "step5.nonexistent", loc.T("step5.nonexistent"))
	assert.Equal(t, "", loc.T(""))
	assert.Equal(t, "step5", loc.T("step5"), "section keys are not messages")
}

func TestLocale_Matching(t *testing.T) {
	assert.Equal(t, language.Japanese, New(language.MustParse("ja-JP")).Tag())
	assert.Equal(t, language.Chinese, New(language.MustParse("zh-CN")).Tag())
	assert.Equal(t, language.English, New(language.French).Tag())
	assert.Equal(t, language.English, New(language.Und).Tag())

	assert.Equal(t, language.Korean, Parse("ko").Tag())
	assert.Equal(t, language.Japanese, Parse("fr;q=0.9, ja;q=0.8").Tag())
	assert.Equal(t, language.English, Parse("!!").Tag())
}

func TestBundle_FallbackToEnglish(t *testing.T) {
	b, err := Load()
	require.NoError(t, err)
	require.NoError(t, b.add(language.English, []byte("extra:\n  key: \"English only\"\n")))

	assert.Equal(t, "English only", b.Locale(language.Korean).T("extra.key"))
	assert.Equal(t, "재생", b.Locale(language.Korean).T("step5.play"))
}

func TestLocale_Messages(t *testing.T) {
	msgs := New(language.Chinese).Messages()
	assert.Equal(t, "播放", msgs["step5.play"])
	assert.Equal(t, "AI音乐视频创作器", msgs["appTitle"])

	keys := Default().Keys()
	assert.Contains(t, keys, "common.confirm")
	assert.Len(t, msgs, len(keys))
}
