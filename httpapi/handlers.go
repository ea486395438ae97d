package httpapi

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	gocmd "github.com/goliatone/go-command"
	paychaincommand "github.com/goliatone/go-paychain/command"
	"github.com/goliatone/go-paychain/core"
	paychainquery "github.com/goliatone/go-paychain/query"
)

type validatable interface {
	Validate() error
}

// execute validates msg and runs it through handler, returning the value the
// handler stored on the result collector.
func execute[M validatable, R any](ctx context.Context, handler interface {
	Execute(context.Context, M) error
}, msg M) (R, error) {
	var zero R
	if err := msg.Validate(); err != nil {
		return zero, err
	}
	collector := gocmd.NewResult[R]()
	if err := handler.Execute(gocmd.ContextWithResult(ctx, collector), msg); err != nil {
		return zero, err
	}
	out, _ := collector.Load()
	return out, nil
}

func query[M validatable, R any](ctx context.Context, handler interface {
	Query(context.Context, M) (R, error)
}, msg M) (R, error) {
	var zero R
	if err := msg.Validate(); err != nil {
		return zero, err
	}
	return handler.Query(ctx, msg)
}

type initializeBody struct {
	Caller       solana.PublicKey `json:"caller"`
	Router       solana.PublicKey `json:"router" binding:"required"`
	FeeRecipient solana.PublicKey `json:"fee_recipient"`
	ProgramID    solana.PublicKey `json:"program_id" binding:"required"`
	ChainID      string           `json:"chain_id" binding:"required,max=64"`
}

func (s *Server) initialize(c *gin.Context) {
	var body initializeBody
	if !s.bind(c, &body) {
		return
	}
	if !actAs(c, "caller", &body.Caller) {
		return
	}
	deployment, err := execute[paychaincommand.InitializeMessage, core.Deployment](
		c.Request.Context(),
		s.facade.Commands().Initialize,
		paychaincommand.InitializeMessage{Request: core.InitializeRequest{
			Caller:       body.Caller,
			Router:       body.Router,
			FeeRecipient: body.FeeRecipient,
			ProgramID:    body.ProgramID,
			ChainID:      body.ChainID,
		}},
	)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, NewDeploymentView(deployment, s.amountDecimals))
}

type feeScheduleBody struct {
	Caller       solana.PublicKey `json:"caller"`
	FeeRecipient solana.PublicKey `json:"fee_recipient"`
	FixedBaseFee uint64           `json:"fixed_base_fee"`
	FeeRateBps   uint16           `json:"fee_rate_bps" binding:"lte=10000"`
}

func (s *Server) updateFeeSchedule(c *gin.Context) {
	var body feeScheduleBody
	if !s.bind(c, &body) {
		return
	}
	if !actAs(c, "caller", &body.Caller) {
		return
	}
	deployment, err := execute[paychaincommand.UpdateFeeScheduleMessage, core.Deployment](
		c.Request.Context(),
		s.facade.Commands().UpdateFeeSchedule,
		paychaincommand.UpdateFeeScheduleMessage{Request: core.UpdateFeeScheduleRequest{
			Caller:       body.Caller,
			FeeRecipient: body.FeeRecipient,
			FixedBaseFee: body.FixedBaseFee,
			FeeRateBps:   body.FeeRateBps,
		}},
	)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewDeploymentView(deployment, s.amountDecimals))
}

func (s *Server) getDeployment(c *gin.Context) {
	deployment, err := query[paychainquery.GetDeploymentMessage, core.Deployment](
		c.Request.Context(), s.facade.Queries().GetDeployment, paychainquery.GetDeploymentMessage{},
	)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewDeploymentView(deployment, s.amountDecimals))
}

func (s *Server) getVault(c *gin.Context) {
	vault, err := query[paychainquery.GetVaultMessage, core.Vault](
		c.Request.Context(), s.facade.Queries().GetVault, paychainquery.GetVaultMessage{},
	)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewVaultView(vault, s.amountDecimals))
}

type createPaymentBody struct {
	PaymentID   core.Bytes32     `json:"payment_id" binding:"required"`
	Sender      solana.PublicKey `json:"sender"`
	Token       solana.PublicKey `json:"token"`
	DestChainID string           `json:"dest_chain_id" binding:"required,max=64"`
	DestToken   core.Bytes32     `json:"dest_token"`
	Amount      uint64           `json:"amount" binding:"required,gt=0"`
	Receiver    core.Bytes32     `json:"receiver"`
}

func (s *Server) createPayment(c *gin.Context) {
	var body createPaymentBody
	if !s.bind(c, &body) {
		return
	}
	if !actAs(c, "sender", &body.Sender) {
		return
	}
	payment, err := execute[paychaincommand.CreatePaymentMessage, core.Payment](
		c.Request.Context(),
		s.facade.Commands().CreatePayment,
		paychaincommand.CreatePaymentMessage{Request: core.CreatePaymentRequest{
			PaymentID:   body.PaymentID,
			Sender:      body.Sender,
			Token:       body.Token,
			DestChainID: body.DestChainID,
			DestToken:   body.DestToken,
			Amount:      body.Amount,
			Receiver:    body.Receiver,
		}},
	)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, NewPaymentView(payment, s.amountDecimals))
}

func (s *Server) getPayment(c *gin.Context) {
	id, ok := paymentIDParam(c)
	if !ok {
		return
	}
	payment, err := query[paychainquery.GetPaymentMessage, core.Payment](
		c.Request.Context(), s.facade.Queries().GetPayment, paychainquery.GetPaymentMessage{PaymentID: id},
	)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewPaymentView(payment, s.amountDecimals))
}

func (s *Server) listPayments(c *gin.Context) {
	filter := core.PaymentFilter{Status: core.PaymentStatus(strings.ToLower(strings.TrimSpace(c.Query("status"))))}
	if raw := strings.TrimSpace(c.Query("sender")); raw != "" {
		sender, err := solana.PublicKeyFromBase58(raw)
		if err != nil {
			writeError(c, badRequest("httpapi: sender is not a valid public key", "sender"))
			return
		}
		filter.Sender = sender
	}
	limit, ok := limitParam(c)
	if !ok {
		return
	}
	filter.Limit = limit
	payments, err := query[paychainquery.ListPaymentsMessage, []core.Payment](
		c.Request.Context(), s.facade.Queries().ListPayments, paychainquery.ListPaymentsMessage{Filter: filter},
	)
	if err != nil {
		writeError(c, err)
		return
	}
	views := make([]PaymentView, 0, len(payments))
	for _, payment := range payments {
		views = append(views, NewPaymentView(payment, s.amountDecimals))
	}
	c.JSON(http.StatusOK, gin.H{"payments": views})
}

type callerBody struct {
	Caller solana.PublicKey `json:"caller"`
}

func (s *Server) processRefund(c *gin.Context) {
	id, ok := paymentIDParam(c)
	if !ok {
		return
	}
	var body callerBody
	if !s.bind(c, &body) {
		return
	}
	if !actAs(c, "caller", &body.Caller) {
		return
	}
	payment, err := execute[paychaincommand.ProcessRefundMessage, core.Payment](
		c.Request.Context(),
		s.facade.Commands().ProcessRefund,
		paychaincommand.ProcessRefundMessage{Request: core.ProcessRefundRequest{
			Caller:    body.Caller,
			PaymentID: id,
		}},
	)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewPaymentView(payment, s.amountDecimals))
}

type transitionBody struct {
	Caller solana.PublicKey `json:"caller"`
	Status string           `json:"status" binding:"required,oneof=pending processing completed failed refunded"`
}

func (s *Server) transitionPayment(c *gin.Context) {
	id, ok := paymentIDParam(c)
	if !ok {
		return
	}
	var body transitionBody
	if !s.bind(c, &body) {
		return
	}
	if !actAs(c, "caller", &body.Caller) {
		return
	}
	payment, err := execute[paychaincommand.TransitionPaymentMessage, core.Payment](
		c.Request.Context(),
		s.facade.Commands().TransitionPayment,
		paychaincommand.TransitionPaymentMessage{Request: core.TransitionPaymentRequest{
			Caller:    body.Caller,
			PaymentID: id,
			Status:    core.PaymentStatus(body.Status),
		}},
	)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewPaymentView(payment, s.amountDecimals))
}

type createRequestBody struct {
	RequestID   string           `json:"request_id" binding:"required,max=32"`
	Merchant    solana.PublicKey `json:"merchant"`
	Receiver    solana.PublicKey `json:"receiver"`
	Token       solana.PublicKey `json:"token"`
	Amount      uint64           `json:"amount" binding:"required,gt=0"`
	Description string           `json:"description" binding:"max=128"`
}

func (s *Server) createPaymentRequest(c *gin.Context) {
	var body createRequestBody
	if !s.bind(c, &body) {
		return
	}
	if !actAs(c, "merchant", &body.Merchant) {
		return
	}
	request, err := execute[paychaincommand.CreatePaymentRequestMessage, core.PaymentRequest](
		c.Request.Context(),
		s.facade.Commands().CreatePaymentRequest,
		paychaincommand.CreatePaymentRequestMessage{Input: core.CreatePaymentRequestInput{
			RequestID:   body.RequestID,
			Merchant:    body.Merchant,
			Receiver:    body.Receiver,
			Token:       body.Token,
			Amount:      body.Amount,
			Description: body.Description,
		}},
	)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, NewPaymentRequestView(request, s.amountDecimals))
}

func (s *Server) getPaymentRequest(c *gin.Context) {
	request, err := query[paychainquery.GetPaymentRequestMessage, core.PaymentRequest](
		c.Request.Context(), s.facade.Queries().GetPaymentRequest, paychainquery.GetPaymentRequestMessage{RequestID: c.Param("id")},
	)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewPaymentRequestView(request, s.amountDecimals))
}

type payRequestBody struct {
	Payer solana.PublicKey `json:"payer"`
}

func (s *Server) payRequest(c *gin.Context) {
	var body payRequestBody
	if !s.bind(c, &body) {
		return
	}
	if !actAs(c, "payer", &body.Payer) {
		return
	}
	request, err := execute[paychaincommand.PayRequestMessage, core.PaymentRequest](
		c.Request.Context(),
		s.facade.Commands().PayRequest,
		paychaincommand.PayRequestMessage{Input: core.PayRequestInput{
			RequestID: c.Param("id"),
			Payer:     body.Payer,
		}},
	)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewPaymentRequestView(request, s.amountDecimals))
}

func (s *Server) listSettlements(c *gin.Context) {
	filter := core.SettlementFilter{}
	if raw := strings.TrimSpace(c.Query("payment_id")); raw != "" {
		id, err := core.ParseBytes32(raw)
		if err != nil {
			writeError(c, badRequest("httpapi: payment_id must be 32 bytes of hex", "payment_id"))
			return
		}
		filter.PaymentID = id
	}
	limit, ok := limitParam(c)
	if !ok {
		return
	}
	filter.Limit = limit
	settlements, err := query[paychainquery.ListSettlementsMessage, []core.InboundSettlement](
		c.Request.Context(), s.facade.Queries().ListSettlements, paychainquery.ListSettlementsMessage{Filter: filter},
	)
	if err != nil {
		writeError(c, err)
		return
	}
	views := make([]SettlementView, 0, len(settlements))
	for _, settlement := range settlements {
		views = append(views, NewSettlementView(settlement, s.amountDecimals))
	}
	c.JSON(http.StatusOK, gin.H{"settlements": views})
}

type offrampBody struct {
	Caller              solana.PublicKey `json:"caller"`
	SourceChainSelector string           `json:"source_chain_selector" binding:"required,number"`
	Relay               solana.PublicKey `json:"relay" binding:"required"`
}

func (b offrampBody) request() (core.OfframpRequest, error) {
	selector, err := strconv.ParseUint(strings.TrimSpace(b.SourceChainSelector), 10, 64)
	if err != nil {
		return core.OfframpRequest{}, badRequest("httpapi: source_chain_selector must be an unsigned 64-bit integer", "source_chain_selector")
	}
	return core.OfframpRequest{
		Caller:              b.Caller,
		SourceChainSelector: selector,
		Relay:               b.Relay,
	}, nil
}

func (s *Server) allowOfframp(c *gin.Context) {
	var body offrampBody
	if !s.bind(c, &body) {
		return
	}
	if !actAs(c, "caller", &body.Caller) {
		return
	}
	req, err := body.request()
	if err != nil {
		writeError(c, err)
		return
	}
	entry, err := execute[paychaincommand.AllowOfframpMessage, core.OfframpEntry](
		c.Request.Context(), s.facade.Commands().AllowOfframp, paychaincommand.AllowOfframpMessage{Request: req},
	)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, NewOfframpView(entry))
}

func (s *Server) revokeOfframp(c *gin.Context) {
	var body offrampBody
	if !s.bind(c, &body) {
		return
	}
	if !actAs(c, "caller", &body.Caller) {
		return
	}
	req, err := body.request()
	if err != nil {
		writeError(c, err)
		return
	}
	msg := paychaincommand.RevokeOfframpMessage{Request: req}
	if err := msg.Validate(); err != nil {
		writeError(c, err)
		return
	}
	if err := s.facade.Commands().RevokeOfframp.Execute(c.Request.Context(), msg); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type swapAccountBody struct {
	PublicKey  solana.PublicKey `json:"public_key" binding:"required"`
	IsSigner   bool             `json:"is_signer"`
	IsWritable bool             `json:"is_writable"`
}

type swapBody struct {
	Payer    solana.PublicKey  `json:"payer"`
	Program  solana.PublicKey  `json:"program" binding:"required"`
	Accounts []swapAccountBody `json:"accounts" binding:"dive"`
	Data     hexutil.Bytes     `json:"data"`
}

func (s *Server) swapTokens(c *gin.Context) {
	var body swapBody
	if !s.bind(c, &body) {
		return
	}
	if !actAs(c, "payer", &body.Payer) {
		return
	}
	accounts := make([]core.SwapAccount, 0, len(body.Accounts))
	for _, account := range body.Accounts {
		accounts = append(accounts, core.SwapAccount{
			PublicKey:  account.PublicKey,
			IsSigner:   account.IsSigner,
			IsWritable: account.IsWritable,
		})
	}
	result, err := execute[paychaincommand.SwapTokensMessage, core.SwapResult](
		c.Request.Context(),
		s.facade.Commands().SwapTokens,
		paychaincommand.SwapTokensMessage{Request: core.SwapTokensRequest{
			Payer: body.Payer,
			Instruction: core.SwapInstruction{
				Program:  body.Program,
				Accounts: accounts,
				Data:     []byte(body.Data),
			},
		}},
	)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"reference": result.Reference,
		"metadata":  result.Metadata,
	})
}

type dispatchBody struct {
	BatchSize int `json:"batch_size" binding:"gte=0"`
}

func (s *Server) dispatchLifecycle(c *gin.Context) {
	var body dispatchBody
	if c.Request.ContentLength != 0 && !s.bind(c, &body) {
		return
	}
	if !s.requireAuthority(c) {
		return
	}
	stats, err := execute[paychaincommand.DispatchLifecycleMessage, core.DispatchStats](
		c.Request.Context(),
		s.facade.Commands().DispatchLifecycle,
		paychaincommand.DispatchLifecycleMessage{BatchSize: body.BatchSize},
	)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"claimed":   stats.Claimed,
		"delivered": stats.Delivered,
		"retried":   stats.Retried,
		"failed":    stats.Failed,
	})
}

// receiveRelay hands the raw envelope to the inbound dispatcher, which owns
// replay suppression.
func (s *Server) receiveRelay(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeError(c, badRequest("httpapi: relay body could not be read", "body"))
		return
	}
	result, err := s.relay.DispatchJSON(c.Request.Context(), body)
	if err != nil {
		writeError(c, err)
		return
	}
	response := gin.H{
		"accepted": result.Accepted,
		"metadata": result.Metadata,
	}
	if !result.Settlement.MessageID.IsZero() {
		response["settlement"] = NewSettlementView(result.Settlement, s.amountDecimals)
	}
	c.JSON(result.StatusCode, response)
}

func paymentIDParam(c *gin.Context) (core.Bytes32, bool) {
	id, err := core.ParseBytes32(c.Param("id"))
	if err != nil {
		writeError(c, badRequest("httpapi: payment id must be 32 bytes of hex", "id"))
		return core.Bytes32{}, false
	}
	return id, true
}

func limitParam(c *gin.Context) (int, bool) {
	raw := strings.TrimSpace(c.Query("limit"))
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil {
		writeError(c, badRequest("httpapi: limit must be an integer", "limit"))
		return 0, false
	}
	return limit, true
}
