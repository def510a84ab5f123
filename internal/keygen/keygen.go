// Package keygen 实现访问密钥的表面格式：生成与校验，
// 与任何后端记录无关。
package keygen

import (
	"crypto/rand"
	"errors"
	"fmt"
	"regexp"

	"github.com/Ayi-pei/yunjvcrm/internal/domain"
)

var (
	// ErrGenerationExhausted 唯一密钥生成重试次数耗尽。
	// 密钥空间达 36^12 以上，正常情况下几乎不可能触发，
	// 出现时应怀疑随机源或存在性判断异常。
	ErrGenerationExhausted = errors.New("key generation attempts exhausted")
)

const (
	// 密钥字符集：纯小写字母与数字
	keyAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

	// AdminKeyLength 管理员密钥长度
	AdminKeyLength = 12
	// AgentKeyLength 坐席密钥长度
	AgentKeyLength = 16

	// DefaultMaxAttempts 生成唯一密钥的默认重试上限
	DefaultMaxAttempts = 10

	// shortIDAlphabet 短链接字符集（区分大小写）
	shortIDAlphabet = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	// ShortIDLength 短链接长度
	ShortIDLength = 6
)

// 格式校验先于任何存储访问，便宜地拒绝畸形输入
var keyPattern = regexp.MustCompile(`^[a-z0-9]{12,16}$`)

// KeyLength 返回指定类型密钥的固定长度
func KeyLength(kind domain.KeyKind) int {
	if kind == domain.KeyKindAdmin {
		return AdminKeyLength
	}
	return AgentKeyLength
}

// Generate 生成一个指定类型的密钥字符串
//
// 使用加密安全随机源，防止密钥被预测。
func Generate(kind domain.KeyKind) (string, error) {
	return randomString(keyAlphabet, KeyLength(kind))
}

// IsWellFormed 校验字符串是否符合密钥格式
//
// 格式合法是必要非充分条件：合法字符串未必对应任何有效密钥记录。
func IsWellFormed(s string) bool {
	return keyPattern.MatchString(s)
}

// ExistsFunc 由调用方提供的存在性判断（针对记录存储）
type ExistsFunc func(value string) (bool, error)

// GenerateUnique 反复生成密钥直到不与现有记录冲突
//
// 重试 maxAttempts 次后返回 ErrGenerationExhausted；
// maxAttempts <= 0 时使用 DefaultMaxAttempts。
func GenerateUnique(kind domain.KeyKind, exists ExistsFunc, maxAttempts int) (string, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		value, err := Generate(kind)
		if err != nil {
			return "", err
		}

		taken, err := exists(value)
		if err != nil {
			return "", fmt.Errorf("check key existence: %w", err)
		}
		if !taken {
			return value, nil
		}
	}

	return "", ErrGenerationExhausted
}

// GenerateShortID 生成客户端聊天入口的短链接 ID，冲突时重试
func GenerateShortID(exists ExistsFunc, maxAttempts int) (string, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	for attempt := 0; attempt < maxAttempts; attempt++ {
		value, err := randomString(shortIDAlphabet, ShortIDLength)
		if err != nil {
			return "", err
		}

		taken, err := exists(value)
		if err != nil {
			return "", fmt.Errorf("check short id uniqueness: %w", err)
		}
		if !taken {
			return value, nil
		}
	}

	return "", ErrGenerationExhausted
}

func randomString(alphabet string, length int) (string, error) {
	// 拒绝采样：丢弃无法整除字符集大小的尾部字节值，
	// 保证每个字符被选中的概率严格相等。
	limit := 256 - 256%len(alphabet)

	out := make([]byte, 0, length)
	buf := make([]byte, length)
	for len(out) < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random bytes: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, alphabet[int(b)%len(alphabet)])
			if len(out) == length {
				break
			}
		}
	}
	return string(out), nil
}
