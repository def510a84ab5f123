package keygen

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ayi-pei/yunjvcrm/internal/domain"
)

func TestGenerate_Length(t *testing.T) {
	adminKey, err := Generate(domain.KeyKindAdmin)
	require.NoError(t, err)
	assert.Len(t, adminKey, AdminKeyLength)

	agentKey, err := Generate(domain.KeyKindAgent)
	require.NoError(t, err)
	assert.Len(t, agentKey, AgentKeyLength)
}

func TestGenerate_Charset(t *testing.T) {
	for i := 0; i < 50; i++ {
		key, err := Generate(domain.KeyKindAgent)
		require.NoError(t, err)
		assert.True(t, IsWellFormed(key), "generated key %q should be well formed", key)
	}
}

func TestRandomString_UniformDistribution(t *testing.T) {
	// 字节直接取模会让字符集前 256%36=4 个字符多出 1/7 的概率，
	// 大样本下每个字符的出现频次应贴近均值
	const rounds = 12000

	counts := make(map[byte]int, len(keyAlphabet))
	for i := 0; i < rounds; i++ {
		s, err := randomString(keyAlphabet, AgentKeyLength)
		require.NoError(t, err)
		require.Len(t, s, AgentKeyLength)
		for j := 0; j < len(s); j++ {
			counts[s[j]]++
		}
	}

	require.Len(t, counts, len(keyAlphabet))

	expected := float64(rounds*AgentKeyLength) / float64(len(keyAlphabet))
	for ch, n := range counts {
		assert.InDelta(t, expected, float64(n), expected*0.08,
			"char %q appeared %d times, expected about %.0f", ch, n, expected)
	}
}

func TestIsWellFormed(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  bool
	}{
		{"合法的12位管理员密钥", "adminayi8881", true},
		{"合法的16位坐席密钥", "abcd1234efgh5678", true},
		{"太短", "abc123", false},
		{"太长", "abcdefghij1234567890", false},
		{"含大写字母", "ABCD1234efgh5678", false},
		{"含特殊字符", "abcd-1234-efgh56", false},
		{"空字符串", "", false},
		{"13位（区间内任意长度均合法）", "abcdefgh12345", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsWellFormed(tc.input))
		})
	}
}

func TestGenerateUnique_RetriesOnCollision(t *testing.T) {
	calls := 0
	exists := func(value string) (bool, error) {
		calls++
		// 前两次判定为已占用，第三次放行
		return calls < 3, nil
	}

	key, err := GenerateUnique(domain.KeyKindAgent, exists, 5)
	require.NoError(t, err)
	assert.Len(t, key, AgentKeyLength)
	assert.Equal(t, 3, calls)
}

func TestGenerateUnique_Exhausted(t *testing.T) {
	exists := func(value string) (bool, error) {
		return true, nil
	}

	_, err := GenerateUnique(domain.KeyKindAgent, exists, 3)
	assert.ErrorIs(t, err, ErrGenerationExhausted)
}

func TestGenerateUnique_PropagatesStoreError(t *testing.T) {
	boom := errors.New("store down")
	exists := func(value string) (bool, error) {
		return false, boom
	}

	_, err := GenerateUnique(domain.KeyKindAgent, exists, 3)
	assert.ErrorIs(t, err, boom)
}

func TestGenerateShortID(t *testing.T) {
	exists := func(value string) (bool, error) {
		return false, nil
	}

	id, err := GenerateShortID(exists, DefaultMaxAttempts)
	require.NoError(t, err)
	assert.Len(t, id, ShortIDLength)
}

func TestGenerateShortID_Exhausted(t *testing.T) {
	exists := func(value string) (bool, error) {
		return true, nil
	}

	_, err := GenerateShortID(exists, 2)
	assert.ErrorIs(t, err, ErrGenerationExhausted)
}
