package crypto

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

var (
	ErrInvalidSignatureLength = errors.New("invalid signature length")
	ErrSignatureMismatch      = errors.New("signature does not match address")
	ErrInvalidSelector        = errors.New("invalid function selector")
)

// ValidateEthereumAddress 校验以太坊地址格式
func ValidateEthereumAddress(address string) bool {
	return common.IsHexAddress(address) && strings.HasPrefix(strings.ToLower(address), "0x")
}

// NormalizeAddress 地址统一转小写
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// RecoverAddress 从EIP-191签名中恢复地址
func RecoverAddress(message, signature string) (string, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil {
		return "", fmt.Errorf("failed to decode signature: %w", err)
	}
	if len(sig) != 65 {
		return "", ErrInvalidSignatureLength
	}

	// 钱包签名的v值为27/28，需要转换为0/1
	if sig[64] >= 27 {
		sig[64] -= 27
	}

	hash := accounts.TextHash([]byte(message))
	pubKey, err := ethcrypto.SigToPub(hash, sig)
	if err != nil {
		return "", fmt.Errorf("failed to recover public key: %w", err)
	}

	return NormalizeAddress(ethcrypto.PubkeyToAddress(*pubKey).Hex()), nil
}

// VerifySignature 校验签名是否由指定地址产生
func VerifySignature(message, signature, address string) error {
	recovered, err := RecoverAddress(message, signature)
	if err != nil {
		return err
	}
	if recovered != NormalizeAddress(address) {
		return ErrSignatureMismatch
	}
	return nil
}

// Selector 计算函数签名的4字节选择器
func Selector(signature string) [4]byte {
	var sel [4]byte
	copy(sel[:], ethcrypto.Keccak256([]byte(signature))[:4])
	return sel
}

// ParseSelector 解析0x开头的选择器或函数签名
func ParseSelector(input string) ([4]byte, error) {
	var sel [4]byte
	input = strings.TrimSpace(input)
	if strings.Contains(input, "(") {
		return Selector(input), nil
	}
	raw := strings.TrimPrefix(strings.ToLower(input), "0x")
	if len(raw) != 8 {
		return sel, ErrInvalidSelector
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return sel, ErrInvalidSelector
	}
	copy(sel[:], b)
	return sel, nil
}

// SelectorHex 选择器转为0x前缀的十六进制字符串
func SelectorHex(sel [4]byte) string {
	return "0x" + hex.EncodeToString(sel[:])
}
