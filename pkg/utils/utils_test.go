package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRenderURLTemplate(t *testing.T) {
	rendered, missing := RenderURLTemplate("https://api1.raildata.org.uk/board/{crs}?rows=10", map[string]string{"crs": "KGX"})
	assert.Empty(t, missing)
	assert.Equal(t, "https://api1.raildata.org.uk/board/KGX?rows=10", rendered)
}

func TestRenderURLTemplateEscapesValues(t *testing.T) {
	rendered, missing := RenderURLTemplate("https://host/x?id={serviceid}", map[string]string{"serviceid": "a b/c+d"})
	assert.Empty(t, missing)
	assert.Equal(t, "https://host/x?id=a+b%2Fc%2Bd", rendered)
}

func TestRenderURLTemplateReportsMissing(t *testing.T) {
	_, missing := RenderURLTemplate("https://host/{stanoxGroup}/{currentVersion}/{stanoxGroup}", map[string]string{
		"currentVersion": "  ",
	})
	assert.Equal(t, []string{"stanoxGroup", "currentVersion", "stanoxGroup"}, missing)
}

func TestRenderURLTemplateWithoutPlaceholders(t *testing.T) {
	rendered, missing := RenderURLTemplate("https://host/static", nil)
	assert.Empty(t, missing)
	assert.Equal(t, "https://host/static", rendered)
}

func TestHaversineKm(t *testing.T) {
	// King's Cross to St Pancras is a few hundred metres
	d := HaversineKm(51.5308, -0.1238, 51.5320, -0.1260)
	assert.InDelta(t, 0.2, d, 0.1)

	// London to Edinburgh
	d = HaversineKm(51.5074, -0.1278, 55.9533, -3.1883)
	assert.InDelta(t, 534, d, 5)

	assert.Zero(t, HaversineKm(10, 10, 10, 10))
}

func TestRoundTo(t *testing.T) {
	assert.Equal(t, 1.23, RoundTo(1.2345, 2))
	assert.Equal(t, 44.99, RoundTo(44.9912, 2))
	assert.Equal(t, 0.0, RoundTo(0.001, 2))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abcdef", 3))
	assert.Equal(t, "abc", Truncate("abc", 500))
	// é is two bytes, never split it
	assert.Equal(t, "a", Truncate("aé", 2))
}

func TestBasicAuth(t *testing.T) {
	// key-as-username with empty password keeps the trailing colon
	assert.Equal(t, "Basic a2V5Og==", BasicAuth("key", ""))
	assert.Equal(t, "Basic dXNlcjpwYXNz", BasicAuth("user", "pass"))
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "abcd...wxyz", MaskSecret("abcdefghijklmnopqrstuvwxyz"))
	assert.Equal(t, "*****", MaskSecret("short"))
}
