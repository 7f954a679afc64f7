package signature

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignDeterministic(t *testing.T) {
	for _, algorithm := range []string{
		AlgorithmSHA1, AlgorithmSHA256, AlgorithmSHA512, AlgorithmSHA3, AlgorithmBlake2b,
	} {
		t.Run(algorithm, func(t *testing.T) {
			a, err := Sign([]byte("secret"), []byte("nonce"), algorithm)
			require.NoError(t, err)
			b, err := Sign([]byte("secret"), []byte("nonce"), algorithm)
			require.NoError(t, err)

			assert.NotEmpty(t, a)
			assert.True(t, Equal(a, b))
		})
	}
}

func TestSignSensitivity(t *testing.T) {
	base, err := Sign([]byte("secret"), []byte("nonce"), AlgorithmSHA1)
	require.NoError(t, err)

	changedSecret, err := Sign([]byte("secreu"), []byte("nonce"), AlgorithmSHA1)
	require.NoError(t, err)
	assert.False(t, Equal(base, changedSecret))

	changedMessage, err := Sign([]byte("secret"), []byte("nonde"), AlgorithmSHA1)
	require.NoError(t, err)
	assert.False(t, Equal(base, changedMessage))
}

func TestAlgorithmsDiffer(t *testing.T) {
	seen := make(map[string]string)
	for _, algorithm := range []string{
		AlgorithmSHA1, AlgorithmSHA256, AlgorithmSHA512, AlgorithmSHA3, AlgorithmBlake2b,
	} {
		sig, err := Sign([]byte("secret"), []byte("nonce"), algorithm)
		require.NoError(t, err)
		for other, otherSig := range seen {
			assert.NotEqual(t, otherSig, sig, "%s and %s produced the same signature", algorithm, other)
		}
		seen[algorithm] = sig
	}
}

func TestUnsupportedAlgorithm(t *testing.T) {
	_, err := Sign([]byte("secret"), []byte("nonce"), "md5")
	assert.Error(t, err)
	assert.False(t, Supported("md5"))
	assert.True(t, Supported(DefaultAlgorithm))
}
