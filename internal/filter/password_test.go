// internal/filter/password_test.go
package filter

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPasswordRedactor_Redact(t *testing.T) {
	r := NewPasswordRedactor(DefaultSecurityWords)
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"simple pair", "key=a", "key=REDACTED"},
		{"regex characters in value", "key=     *REDACTED*", "key=REDACTED"},
		{
			"space separated",
			"sun.java.command=jenkins.war password=word -Dcasc.reload.token=any_value_here",
			"sun.java.command=jenkins.war password=REDACTED -Dcasc.reload.token=REDACTED",
		},
		{
			"comma separated",
			"-Djavax.net.ssl.trustStorePassword.ddd=mySecret,Dcasc.reload.token=any_value_here,password=ip_plain",
			"-Djavax.net.ssl.trustStorePassword.ddd=REDACTED,Dcasc.reload.token=REDACTED,password=REDACTED",
		},
		{
			"values containing security words",
			"Djavax.net.ssl.private_password=mySecret, passwd=password key.damp=keypass",
			"Djavax.net.ssl.private_password=REDACTED, passwd=REDACTED key.damp=REDACTED",
		},
		{
			"space around separator",
			"--argumentsRealm.passwd.<user> = pass ",
			"--argumentsRealm.passwd.<user> =REDACTED ",
		},
		{
			"NUL separated environment",
			"PATH=/usr/local/bin:/usr/bin\x00TERM=xterm\x00PASSWORD=dockerdev\x00DOCKER_HOST=tcp://docker:2376",
			"PATH=/usr/local/bin:/usr/bin\x00TERM=xterm\x00PASSWORD=REDACTED\x00DOCKER_HOST=tcp://docker:2376",
		},
		{"xml value", "<secret>x</secret> token=abc<br>", "<secret>x</secret> token=REDACTED<br>"},
		{"single quoted value", "password='hunter2'", "password=REDACTED"},
		{"double quoted value with space", `password="abc def" other`, "password=REDACTED other"},
		{"unterminated quote", "password='abc def", "password=REDACTED def"},
		{"empty quoted value", `password="" user=bob`, `password="" user=bob`},
		{"empty value", "password=, user=bob", "password=, user=bob"},
		{"empty value before next pair", "password= user=bob", "password= user=bob"},
		{"empty value before next secret", "password= token=abc", "password= token=REDACTED"},
		{"no secret", "user=bob host=ci", "user=bob host=ci"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Redact(tt.in))
		})
	}
}

func TestPasswordRedactor_RedactProperties(t *testing.T) {
	r := NewPasswordRedactor(DefaultSecurityWords)
	props := map[string]string{
		"SECRET_AWS":       "gdfdfdddd",
		"sun.java.command": `Launcher -Didea.version\=2021.2.3 hpi\:run -Djavax.net.ssl.key\=password -Djavax.net.passwd\=secret`,
	}
	want := map[string]string{
		"SECRET_AWS":       "REDACTED",
		"sun.java.command": `Launcher -Didea.version\=2021.2.3 hpi\:run -Djavax.net.ssl.key\=REDACTED -Djavax.net.passwd\=REDACTED`,
	}
	assert.Equal(t, want, r.RedactProperties(props))
	assert.Equal(t, "gdfdfdddd", props["SECRET_AWS"], "input must not be modified")
}

func TestPasswordRedactor_Match(t *testing.T) {
	r := NewPasswordRedactor(DefaultSecurityWords)
	assert.True(t, r.Match("DB_PASSWORD"))
	assert.True(t, r.Match("aws_secret_access_key"))
	assert.False(t, r.Match("JAVA_HOME"))
}

func TestPasswordRedactor_EmptyDictionary(t *testing.T) {
	for _, words := range [][]string{nil, {}, {"", "  "}} {
		r := NewPasswordRedactor(words)
		assert.Equal(t, "secret=passwd", r.Redact("secret=passwd"))
		assert.False(t, r.Match("secret"))
		props := map[string]string{"secret": "gdfdfdddd"}
		assert.Equal(t, props, r.RedactProperties(props))
	}
}

func TestPasswordRedactor_WordsAreLiteral(t *testing.T) {
	r := NewPasswordRedactor([]string{"a.b"})
	assert.Equal(t, "a.b=REDACTED axb=keep", r.Redact("a.b=value axb=keep"))
}

func TestPasswordRedactor_SetWords(t *testing.T) {
	r := NewPasswordRedactor([]string{"pin"})
	assert.Equal(t, "pin=REDACTED password=x", r.Redact("pin=1234 password=x"))

	r.SetWords([]string{"password"})
	assert.Equal(t, []string{"password"}, r.Words())
	assert.Equal(t, "pin=1234 password=REDACTED", r.Redact("pin=1234 password=x"))
}

func TestDictionary_Load(t *testing.T) {
	dir := t.TempDir()

	t.Run("configured patterns win", func(t *testing.T) {
		words, err := Dictionary{Patterns: []string{"pin"}, File: filepath.Join(dir, "unused.txt")}.Load()
		require.NoError(t, err)
		assert.Equal(t, []string{"pin"}, words)
		assert.NoFileExists(t, filepath.Join(dir, "unused.txt"))
	})

	t.Run("empty patterns disable", func(t *testing.T) {
		words, err := Dictionary{Patterns: []string{}}.Load()
		require.NoError(t, err)
		assert.Empty(t, words)
	})

	t.Run("missing file gets defaults", func(t *testing.T) {
		path := filepath.Join(dir, "sub", "security-stop-words.txt")
		words, err := Dictionary{File: path}.Load()
		require.NoError(t, err)
		assert.Equal(t, DefaultSecurityWords, words)
		require.FileExists(t, path)

		again, err := Dictionary{File: path}.Load()
		require.NoError(t, err)
		assert.Equal(t, DefaultSecurityWords, again)
	})

	t.Run("file contents", func(t *testing.T) {
		path := filepath.Join(dir, "custom.txt")
		require.NoError(t, os.WriteFile(path, []byte("# comment\npin\n\napikey\n"), 0644))
		words, err := Dictionary{File: path}.Load()
		require.NoError(t, err)
		assert.Equal(t, []string{"pin", "apikey"}, words)
	})

	t.Run("no file", func(t *testing.T) {
		words, err := Dictionary{}.Load()
		require.NoError(t, err)
		assert.Equal(t, DefaultSecurityWords, words)
	})
}

func TestDictionaryRedactor_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "words.txt")
	require.NoError(t, os.WriteFile(path, []byte("pin\n"), 0644))

	r, err := NewDictionaryRedactor(Dictionary{File: path})
	require.NoError(t, err)
	assert.Equal(t, "pin=REDACTED", r.Filter("pin=1"))

	require.NoError(t, os.WriteFile(path, []byte("code\n"), 0644))
	require.NoError(t, r.Reload(context.Background()))
	assert.Equal(t, "pin=1 code=REDACTED", r.Filter("pin=1 code=2"))

	require.NoError(t, r.SetDictionary(context.Background(), Dictionary{Patterns: []string{}}))
	assert.Equal(t, "code=2", r.Filter("code=2"))
}
