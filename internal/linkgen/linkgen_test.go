package linkgen

import (
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveVLESSURIFormat(t *testing.T) {
	got := DeriveVLESSURI(VLESSParams{
		Identifier:  "0f4a3c55-8e1e-4f7b-9d0b-4b8f6c0f2a11",
		Host:        "203.0.113.7",
		Port:        18890,
		Flow:        DefaultFlow,
		SNI:         "www.speedtest.net",
		Fingerprint: DefaultFingerprint,
		PublicKey:   "mJz5OTsTdMxkV1TUVtAXSwJFM8IhEdDDe21j3U7QeWo",
		ShortID:     "a1b2c3d4",
		Label:       "alice",
	})
	assert.Equal(t, "vless://0f4a3c55-8e1e-4f7b-9d0b-4b8f6c0f2a11@203.0.113.7:18890"+
		"?encryption=none&flow=xtls-rprx-vision&security=reality&sni=www.speedtest.net&fp=chrome"+
		"&pbk=mJz5OTsTdMxkV1TUVtAXSwJFM8IhEdDDe21j3U7QeWo&sid=a1b2c3d4&type=tcp&headerType=none"+
		"&host=www.speedtest.net#alice", got)
}

func TestDeriveHysteria2URIFormat(t *testing.T) {
	got := DeriveHysteria2URI(Hysteria2Params{
		Secret:       "Ab3dEf6hIj9kLm2n",
		Host:         "203.0.113.7",
		Port:         443,
		SNI:          "www.speedtest.net",
		ObfsPassword: "ZXCZ123@!",
		Insecure:     true,
		Label:        "alice",
	})
	assert.Equal(t, "hysteria2://Ab3dEf6hIj9kLm2n@203.0.113.7:443"+
		"?sni=www.speedtest.net&alpn=h3,h2,http/1.1&obfs=salamander&obfs-password=ZXCZ123%40%21&insecure=1#alice", got)

	noObfs := DeriveHysteria2URI(Hysteria2Params{Secret: "x", Host: "h", Port: 1, SNI: "s", Label: "l"})
	assert.Equal(t, "hysteria2://x@h:1?sni=s&alpn=h3,h2,http/1.1&obfs=salamander&obfs-password=&insecure=0#l", noObfs)

	link, err := Parse(noObfs)
	require.NoError(t, err)
	assert.Equal(t, "salamander", link.Obfs)
	assert.Empty(t, link.ObfsPassword)
}

func TestVLESSRoundTrip(t *testing.T) {
	labels := []string{"alice", "Home Office", "a@b#c&d", "50% off + more", "东京 节点", "slash/and?query=1", ""}
	hosts := []string{"203.0.113.7", "node.example.com", "2001:db8::1"}
	for _, host := range hosts {
		for _, label := range labels {
			in := VLESSParams{
				Identifier:  "5d1e0c1a-2b3c-4d5e-8f90-a1b2c3d4e5f6",
				Host:        host,
				Port:        18890,
				Flow:        DefaultFlow,
				SNI:         "www.speedtest.net",
				Fingerprint: "firefox",
				PublicKey:   "mJz5OTsTdMxkV1TUVtAXSwJFM8IhEdDDe21j3U7QeWo",
				ShortID:     "0123",
				Label:       label,
			}
			link, err := Parse(DeriveVLESSURI(in))
			require.NoError(t, err, "host=%q label=%q", host, label)
			assert.Equal(t, "vless", link.Protocol)
			assert.Equal(t, in.Identifier, link.UUID)
			assert.Equal(t, in.Host, link.Server)
			assert.Equal(t, in.Port, link.Port)
			assert.Equal(t, in.Flow, link.Flow)
			assert.Equal(t, in.SNI, link.SNI)
			assert.Equal(t, in.Fingerprint, link.Fingerprint)
			assert.Equal(t, in.PublicKey, link.PublicKey)
			assert.Equal(t, in.ShortID, link.ShortID)
			assert.Equal(t, "reality", link.Security)
			assert.Equal(t, "tcp", link.Network)
			assert.Equal(t, label, link.Label)
		}
	}
}

func TestHysteria2EscapesReservedCharacters(t *testing.T) {
	secrets := []string{"p@ss#word&more", "with space", "plus+slash/", "100%"}
	for _, secret := range secrets {
		label := "Home #1 & friends @ work"
		uri := DeriveHysteria2URI(Hysteria2Params{
			Secret: secret, Host: "203.0.113.7", Port: 443, SNI: "www.speedtest.net",
			ObfsPassword: "ZXCZ123@!", Insecure: false, Label: label,
		})

		userinfo := uri[len("hysteria2://"):strings.LastIndex(uri, "@")]
		fragment := uri[strings.Index(uri, "#")+1:]
		for _, part := range []string{userinfo, fragment} {
			assert.NotContains(t, part, "@")
			assert.NotContains(t, part, "#")
			assert.NotContains(t, part, "&")
			assert.NotContains(t, part, " ")
		}
		assert.Equal(t, 1, strings.Count(uri, "#"))

		link, err := Parse(uri)
		require.NoError(t, err)
		assert.Equal(t, secret, link.Password)
		assert.Equal(t, label, link.Label)
		assert.Equal(t, "ZXCZ123@!", link.ObfsPassword)
		assert.Equal(t, "salamander", link.Obfs)
		assert.Equal(t, "h3,h2,http/1.1", link.ALPN)
		assert.False(t, link.Insecure)

		decoded, err := url.PathUnescape(fragment)
		require.NoError(t, err)
		assert.Equal(t, label, decoded)
	}
}

func TestEscape(t *testing.T) {
	assert.Equal(t, "abc-._~XYZ09", Escape("abc-._~XYZ09"))
	assert.Equal(t, "a%20b%2Bc%2Fd%40e%23f%26g", Escape("a b+c/d@e#f&g"))
	assert.Equal(t, "%E4%B8%9C", Escape("东"))
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("vmess://abc")
	assert.Error(t, err)
	_, err = Parse("trojan://pw@host:443")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
	_, err = Parse("vless://id@host:notaport")
	assert.Error(t, err)
	_, err = Parse("vless://host:443")
	assert.Error(t, err)

	link, err := Parse("hy2://pw@host:8443?insecure=1#n")
	require.NoError(t, err)
	assert.Equal(t, "hysteria2", link.Protocol)
	assert.True(t, link.Insecure)
}
