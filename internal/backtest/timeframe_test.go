package backtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeframeHelpers(t *testing.T) {
	tf, err := ParseTimeframe(" 1H ")
	require.NoError(t, err)
	assert.Equal(t, "1h", tf.Key)
	assert.Equal(t, hourMs, tf.Millis())
	assert.Equal(t, testListingTS, tf.AlignDown(testListingTS+30*60_000))
	assert.Equal(t, 1.5, Hours(90*60_000))

	_, err = ParseTimeframe("7h")
	assert.Error(t, err)
	keys := SupportedTimeframes()
	assert.Equal(t, "1m", keys[0])
	assert.Equal(t, "1d", keys[len(keys)-1])
}
