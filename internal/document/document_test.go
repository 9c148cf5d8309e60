package document

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const legacyConfig = `{
    "log": {"level": "warn"},
    "inbounds": [
        {
            "type": "vless",
            "listen": "::",
            "listen_port": 18890,
            "users": [
                {"name": "alice", "uuid": "0f4a3c55-8e1e-4f7b-9d0b-4b8f6c0f2a11", "flow": "xtls-rprx-vision"},
                {"name": "bob", "uuid": "5d1e0c1a-2b3c-4d5e-8f90-a1b2c3d4e5f6", "flow": "xtls-rprx-vision", "note": "vip"}
            ],
            "tls": {
                "enabled": true,
                "server_name": "www.speedtest.net",
                "reality": {
                    "enabled": true,
                    "handshake": {"server": "www.speedtest.net", "server_port": 443},
                    "private_key": "cDaDzPr3PlS3NM8lreHZbdo-Mhqz8vMBzMSkHXhGIUA",
                    "short_id": ["A1B2C3D4"],
                    "max_time_difference": "12h"
                }
            }
        },
        {
            "type": "mixed",
            "listen": "127.0.0.1",
            "listen_port": 2080
        },
        {
            "type": "hysteria2",
            "tag": "hy2-in",
            "listen": "::",
            "listen_port": 443,
            "up_mbps": 1000,
            "down_mbps": 1000,
            "obfs": {"type": "salamander", "password": "ZXCZ123@!"},
            "users": [
                {"name": "alice", "password": "alicesecret"},
                {"name": "bob", "password": "bobsecret"}
            ],
            "ignore_client_bandwidth": false,
            "tls": {
                "enabled": true,
                "server_name": "www.speedtest.net",
                "certificate_path": "/etc/sing-box/cert/cert.pem",
                "key_path": "/etc/sing-box/cert/key.pem",
                "alpn": ["h3", "http/1.1"]
            },
            "masquerade": "https://www.speedtest.net",
            "brutal_debug": false
        }
    ],
    "outbounds": [{"type": "direct"}, {"type": "block", "tag": "block"}]
}`

func loadLegacy(t *testing.T) *Document {
	t.Helper()
	doc, err := Load([]byte(legacyConfig))
	require.NoError(t, err)
	return doc
}

func TestLoadLegacyConfig(t *testing.T) {
	doc := loadLegacy(t)

	v := doc.VLESS()
	assert.Equal(t, 18890, v.Port)
	assert.Equal(t, "www.speedtest.net", v.SNI())
	assert.Equal(t, "a1b2c3d4", v.TLS.Reality.ShortID)
	assert.Equal(t, []string{"alice", "bob"}, v.Usernames())

	h := doc.Hysteria2()
	assert.Equal(t, 443, h.BindPort())
	assert.Equal(t, "ZXCZ123@!", h.ObfsPassword())
	assert.Equal(t, "/etc/sing-box/cert/cert.pem", h.TLS.CertificatePath)

	names, err := doc.ListUsernames(ProtocolHysteria2)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, names)
	assert.NoError(t, doc.Complete())
}

func TestLoadAcceptsCommentsAndScalarShortID(t *testing.T) {
	src := strings.Replace(legacyConfig, `"short_id": ["A1B2C3D4"],`, `"short_id": "0123", // single string form`, 1)
	doc, err := Load([]byte(src))
	require.NoError(t, err)
	assert.Equal(t, "0123", doc.VLESS().TLS.Reality.ShortID)
}

func TestLoadRejectsBadShapes(t *testing.T) {
	cases := map[string]struct {
		from, to string
		field    string
	}{
		"short id list of two": {`["A1B2C3D4"]`, `["a1", "b2"]`, "short_id"},
		"short id number":      {`["A1B2C3D4"]`, `1234`, "short_id"},
		"short id not hex":     {`["A1B2C3D4"]`, `["zz"]`, "short_id"},
		"port out of range":    {`"listen_port": 18890`, `"listen_port": 70000`, "listen_port"},
		"port is a string":     {`"listen_port": 18890`, `"listen_port": "18890"`, "listen_port"},
		"bad uuid":             {`0f4a3c55-8e1e-4f7b-9d0b-4b8f6c0f2a11`, `not-a-uuid`, "uuid"},
		"duplicate user":       {`{"name": "bob", "password": "bobsecret"}`, `{"name": "alice", "password": "x"}`, "name"},
		"shared port":          {`"listen_port": 443`, `"listen_port": 18890`, "inbounds"},
		"missing vless":        {`"type": "vless"`, `"type": "vmess"`, "inbounds"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			src := strings.Replace(legacyConfig, tc.from, tc.to, 1)
			require.NotEqual(t, legacyConfig, src)
			_, err := Load([]byte(src))
			require.ErrorIs(t, err, ErrMalformed)
			var me *MalformedError
			require.ErrorAs(t, err, &me)
			assert.Contains(t, me.Field, tc.field)
		})
	}

	_, err := Load([]byte("{not json"))
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = Load(nil)
	assert.ErrorIs(t, err, ErrMalformed)
	_, err = Load([]byte(`{"outbounds": []}`))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestSerializeIsCanonicalAndPreservesUnknownFields(t *testing.T) {
	doc := loadLegacy(t)
	first, err := doc.Serialize()
	require.NoError(t, err)

	again, err := Load(first)
	require.NoError(t, err)
	second, err := again.Serialize()
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))

	out := string(first)
	assert.Contains(t, out, `"level": "warn"`)
	assert.Contains(t, out, `"type": "mixed"`)
	assert.Contains(t, out, `"note": "vip"`)
	assert.Contains(t, out, `"password": "ZXCZ123@!"`)
	assert.Contains(t, out, "\n    \"inbounds\": [")
	assert.Contains(t, out, `"short_id": [
                        "a1b2c3d4"
                    ]`)

	var generic map[string]any
	require.NoError(t, json.Unmarshal(first, &generic))
	inbounds := generic["inbounds"].([]any)
	require.Len(t, inbounds, 3)
	assert.Equal(t, "mixed", inbounds[1].(map[string]any)["type"])
}

func TestSerializeKeepsShortIDAbsence(t *testing.T) {
	src := strings.Replace(legacyConfig, `"short_id": ["A1B2C3D4"],`, ``, 1)
	require.NotEqual(t, legacyConfig, src)
	doc, err := Load([]byte(src))
	require.NoError(t, err)
	assert.Empty(t, doc.VLESS().TLS.Reality.ShortID)

	first, err := doc.Serialize()
	require.NoError(t, err)
	assert.NotContains(t, string(first), "short_id")

	again, err := Load(first)
	require.NoError(t, err)
	second, err := again.Serialize()
	require.NoError(t, err)
	assert.Equal(t, string(first), string(second))

	empty := strings.Replace(legacyConfig, `["A1B2C3D4"]`, `""`, 1)
	doc, err = Load([]byte(empty))
	require.NoError(t, err)
	out, err := doc.Serialize()
	require.NoError(t, err)
	assert.Contains(t, string(out), `"short_id": [`)
}

func TestSerializeDoesNotEscapeHTML(t *testing.T) {
	doc := loadLegacy(t)
	require.NoError(t, doc.UpdateUserField(ProtocolHysteria2, "bob", FieldSecret, "a&b<c>"))
	out, err := doc.Serialize()
	require.NoError(t, err)
	assert.Contains(t, string(out), `"password": "a&b<c>"`)
}

func TestAddUser(t *testing.T) {
	doc := loadLegacy(t)
	require.NoError(t, doc.AddUser(ProtocolVLESS, UserCredential{
		Username: "carol", Identifier: "9b2f6a1e-3c4d-4e5f-8a9b-0c1d2e3f4a5b", Flow: "xtls-rprx-vision",
	}))
	require.NoError(t, doc.AddUser(ProtocolHysteria2, UserCredential{Username: "carol", Secret: "s3cret"}))
	assert.Equal(t, []string{"alice", "bob", "carol"}, doc.VLESS().Usernames())
	assert.Equal(t, []string{"alice", "bob", "carol"}, doc.Hysteria2().Usernames())

	before, err := doc.Serialize()
	require.NoError(t, err)
	err = doc.AddUser(ProtocolVLESS, UserCredential{Username: "alice", Identifier: "9b2f6a1e-3c4d-4e5f-8a9b-0c1d2e3f4a5b"})
	assert.ErrorIs(t, err, ErrUserExists)
	after, err := doc.Serialize()
	require.NoError(t, err)
	assert.Equal(t, string(before), string(after))

	assert.ErrorIs(t, doc.AddUser(ProtocolVLESS, UserCredential{Username: ""}), ErrInvalidUser)
	assert.ErrorIs(t, doc.AddUser(ProtocolHysteria2, UserCredential{Username: "dave"}), ErrInvalidUser)
	assert.ErrorIs(t, doc.AddUser("tuic", UserCredential{Username: "dave"}), ErrListenerNotFound)
}

func TestRemoveUser(t *testing.T) {
	doc := loadLegacy(t)
	removed, err := doc.RemoveUser(ProtocolVLESS, "alice")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, []string{"bob"}, doc.VLESS().Usernames())

	removed, err = doc.RemoveUser(ProtocolVLESS, "ghost")
	require.NoError(t, err)
	assert.False(t, removed)

	_, err = doc.RemoveUser("tuic", "bob")
	assert.ErrorIs(t, err, ErrListenerNotFound)
}

func TestUpdateUserFieldTouchesOnlyTarget(t *testing.T) {
	doc := loadLegacy(t)
	before, err := doc.Serialize()
	require.NoError(t, err)

	const fresh = "11111111-2222-4333-8444-555555555555"
	require.NoError(t, doc.UpdateUserField(ProtocolVLESS, "bob", FieldIdentifier, fresh))
	after, err := doc.Serialize()
	require.NoError(t, err)

	expected := strings.Replace(string(before), "5d1e0c1a-2b3c-4d5e-8f90-a1b2c3d4e5f6", fresh, 1)
	assert.Equal(t, expected, string(after))
	assert.Equal(t, "vip", strings.Trim(string(doc.VLESS().Users[1].Extra["note"]), `"`))

	assert.ErrorIs(t, doc.UpdateUserField(ProtocolVLESS, "ghost", FieldIdentifier, fresh), ErrUserNotFound)
	assert.ErrorIs(t, doc.UpdateUserField(ProtocolVLESS, "bob", FieldSecret, "x"), ErrInvalidField)
	assert.ErrorIs(t, doc.UpdateUserField(ProtocolHysteria2, "bob", FieldIdentifier, fresh), ErrInvalidField)
	assert.ErrorIs(t, doc.UpdateUserField(ProtocolHysteria2, "bob", FieldSecret, ""), ErrInvalidUser)
}

func TestIncompleteDocumentIsReadable(t *testing.T) {
	src := strings.Replace(legacyConfig, `"certificate_path": "/etc/sing-box/cert/cert.pem",`, ``, 1)
	doc, err := Load([]byte(src))
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, doc.Hysteria2().Usernames())
	assert.ErrorIs(t, doc.Complete(), ErrIncomplete)

	var generic map[string]any
	require.NoError(t, json.Unmarshal([]byte(legacyConfig), &generic))
	vless := generic["inbounds"].([]any)[0].(map[string]any)
	delete(vless["tls"].(map[string]any), "reality")
	stripped, err := json.Marshal(generic)
	require.NoError(t, err)
	doc, err = Load(stripped)
	require.NoError(t, err)
	err = doc.Complete()
	require.ErrorIs(t, err, ErrIncomplete)
	assert.Contains(t, err.Error(), "reality")
}

func TestNewBuildsCompleteDocument(t *testing.T) {
	doc, err := New(Params{
		VLESSPort:       18890,
		Hysteria2Port:   443,
		ServerName:      "www.speedtest.net",
		PrivateKey:      "cDaDzPr3PlS3NM8lreHZbdo-Mhqz8vMBzMSkHXhGIUA",
		ShortID:         "a1b2c3d4",
		ObfsPassword:    "ZXCZ123@!",
		CertificatePath: "/etc/sing-box/cert/cert.pem",
		KeyPath:         "/etc/sing-box/cert/key.pem",
		UpMbps:          1000,
		DownMbps:        1000,
	})
	require.NoError(t, err)
	require.NoError(t, doc.Complete())

	out, err := doc.Serialize()
	require.NoError(t, err)
	reloaded, err := Load(out)
	require.NoError(t, err)
	assert.Empty(t, reloaded.VLESS().Users)
	assert.Equal(t, "hy2-in", reloaded.Hysteria2().Tag)
	assert.Equal(t, "12h", reloaded.VLESS().TLS.Reality.MaxTimeDifference)
	assert.Equal(t, 443, reloaded.VLESS().TLS.Reality.Handshake.ServerPort)
	assert.Contains(t, string(out), `"users": []`)
	assert.Contains(t, string(out), `"masquerade": "https://www.speedtest.net"`)
	assert.Contains(t, string(out), `"tag": "block"`)

	_, err = New(Params{VLESSPort: 443, Hysteria2Port: 443})
	assert.ErrorIs(t, err, ErrInvalidField)
	_, err = New(Params{VLESSPort: 0, Hysteria2Port: 443})
	assert.ErrorIs(t, err, ErrInvalidField)
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint([]byte("a"))
	assert.Len(t, a, 16)
	assert.Equal(t, a, Fingerprint([]byte("a")))
	assert.NotEqual(t, a, Fingerprint([]byte("b")))
}
