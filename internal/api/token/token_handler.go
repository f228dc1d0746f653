package token

import (
	"math/big"
	"net/http"
	"strings"

	"governance-backend/internal/api/response"
	"governance-backend/internal/middleware"
	"governance-backend/internal/service/auth"
	"governance-backend/internal/types"
	"governance-backend/pkg/crypto"
	"governance-backend/pkg/logger"
	"governance-backend/pkg/token"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
)

// Handler 质押代币查询与授权
type Handler struct {
	gateway     token.Gateway
	authService auth.Service
}

func NewHandler(gateway token.Gateway, authService auth.Service) *Handler {
	return &Handler{gateway: gateway, authService: authService}
}

// RegisterRoutes 注册代币相关路由
func (h *Handler) RegisterRoutes(router *gin.RouterGroup) {
	tokenGroup := router.Group("/token")
	{
		// http://localhost:8080/api/v1/token/balance/0x...
		tokenGroup.GET("/balance/:address", h.GetBalance)
		// http://localhost:8080/api/v1/token/allowance/0x...?spender=0x...
		tokenGroup.GET("/allowance/:owner", h.GetAllowance)
		tokenGroup.POST("/approve", middleware.AuthMiddleware(h.authService), h.Approve)
	}
}

func parseAddress(c *gin.Context, raw string) (common.Address, bool) {
	if !crypto.ValidateEthereumAddress(raw) {
		response.Fail(c, http.StatusBadRequest, "INVALID_ADDRESS", "Invalid address", raw)
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

// GetBalance 代币余额
// @Summary 代币余额
// @Tags Token
// @Produce json
// @Param address path string true "地址"
// @Success 200 {object} types.APIResponse{data=types.TokenBalanceResponse}
// @Failure 502 {object} types.APIResponse{error=types.APIError}
// @Router /api/v1/token/balance/{address} [get]
func (h *Handler) GetBalance(c *gin.Context) {
	addr, ok := parseAddress(c, c.Param("address"))
	if !ok {
		return
	}
	balance, err := h.gateway.BalanceOf(c.Request.Context(), addr)
	if err != nil {
		logger.Error("GetBalance Error: ", err, "address", addr.Hex())
		response.Fail(c, http.StatusBadGateway, "TOKEN_QUERY_FAILED", "Failed to query token balance", err.Error())
		return
	}
	response.OK(c, types.TokenBalanceResponse{Address: addr.Hex(), Balance: balance.String()})
}

// GetAllowance 授权额度
// @Summary 授权额度，spender缺省为治理托管地址
// @Tags Token
// @Produce json
// @Param owner path string true "持有人"
// @Param spender query string false "被授权地址"
// @Success 200 {object} types.APIResponse{data=types.TokenAllowanceResponse}
// @Router /api/v1/token/allowance/{owner} [get]
func (h *Handler) GetAllowance(c *gin.Context) {
	owner, ok := parseAddress(c, c.Param("owner"))
	if !ok {
		return
	}
	spender := h.gateway.Custody()
	if raw := c.Query("spender"); raw != "" {
		if spender, ok = parseAddress(c, raw); !ok {
			return
		}
	}
	allowance, err := h.gateway.Allowance(c.Request.Context(), owner, spender)
	if err != nil {
		logger.Error("GetAllowance Error: ", err, "owner", owner.Hex(), "spender", spender.Hex())
		response.Fail(c, http.StatusBadGateway, "TOKEN_QUERY_FAILED", "Failed to query allowance", err.Error())
		return
	}
	response.OK(c, types.TokenAllowanceResponse{
		Owner:     owner.Hex(),
		Spender:   spender.Hex(),
		Allowance: allowance.String(),
	})
}

// Approve 调用者授权治理托管地址
// @Summary 授权治理托管地址划转质押（仅内存代币）
// @Tags Token
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body types.TokenApproveRequest true "授权额度"
// @Success 200 {object} types.APIResponse{data=types.TokenAllowanceResponse}
// @Failure 501 {object} types.APIResponse{error=types.APIError}
// @Router /api/v1/token/approve [post]
func (h *Handler) Approve(c *gin.Context) {
	caller, ok := middleware.GetCaller(c)
	if !ok {
		response.Unauthorized(c)
		return
	}
	approver, ok := h.gateway.(token.OwnerApprover)
	if !ok {
		response.Fail(c, http.StatusNotImplemented, "NOT_SUPPORTED", token.ErrNotSupported.Error(), "approve from the wallet against the ERC20 contract")
		return
	}
	var req types.TokenApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.InvalidRequest(c, err)
		return
	}
	amount, ok := new(big.Int).SetString(strings.TrimSpace(req.Amount), 10)
	if !ok || amount.Sign() < 0 {
		response.Fail(c, http.StatusBadRequest, "INVALID_AMOUNT", "Amount must be a non-negative decimal integer", req.Amount)
		return
	}

	spender := h.gateway.Custody()
	if err := approver.ApproveFor(c.Request.Context(), caller, spender, amount); err != nil {
		logger.Error("Approve Error: ", err, "owner", caller.Hex())
		response.Fail(c, http.StatusBadRequest, "APPROVE_FAILED", "Approve failed", err.Error())
		return
	}
	logger.Info("Approve: ", "owner", caller.Hex(), "spender", spender.Hex(), "amount", amount.String())
	response.OK(c, types.TokenAllowanceResponse{
		Owner:     caller.Hex(),
		Spender:   spender.Hex(),
		Allowance: amount.String(),
	})
}
