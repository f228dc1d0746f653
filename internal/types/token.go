package types

// TokenBalanceResponse 代币余额响应
type TokenBalanceResponse struct {
	Address string `json:"address"`
	Balance string `json:"balance"`
}

// TokenAllowanceResponse 授权额度响应
type TokenAllowanceResponse struct {
	Owner     string `json:"owner"`
	Spender   string `json:"spender"`
	Allowance string `json:"allowance"`
}

// TokenApproveRequest 授权请求（仅内存代币）
type TokenApproveRequest struct {
	Amount string `json:"amount" binding:"required"`
}
