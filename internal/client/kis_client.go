package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/yourorg/trading-engine/internal/config"
	"github.com/yourorg/trading-engine/internal/model"

	"go.uber.org/zap"
)

const (
	tokenPath   = "/oauth2/tokenP"
	balancePath = "/uapi/domestic-stock/v1/trading/inquire-balance"

	balanceTrIDReal  = "TTTC8434R"
	balanceTrIDPaper = "VTTC8434R"

	tokenExpiryLayout = "2006-01-02 15:04:05"
)

// Token is an issued access token with its broker-reported expiry.
type Token struct {
	AccessToken string
	ExpiresAt   time.Time
}

// KISClient talks to the KIS open API. Real and paper accounts use
// different hosts; the account type picks the base URL per call.
type KISClient struct {
	realBaseURL  string
	paperBaseURL string
	httpClient   *http.Client
	logger       *zap.Logger
}

// NewKISClient creates a new KIS open API client
func NewKISClient(cfg config.BrokerConfig, logger *zap.Logger) *KISClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &KISClient{
		realBaseURL:  cfg.RealBaseURL,
		paperBaseURL: cfg.PaperBaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}
}

func (c *KISClient) baseURL(kind model.AccountType) string {
	if kind == model.AccountTypePaper {
		return c.paperBaseURL
	}
	return c.realBaseURL
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
	Expired     string `json:"access_token_token_expired"`
}

// IssueToken requests a fresh access token for the app credentials.
func (c *KISClient) IssueToken(ctx context.Context, kind model.AccountType, appKey, appSecret string) (*Token, error) {
	reqURL := c.baseURL(kind) + tokenPath

	body, err := json.Marshal(map[string]string{
		"grant_type": "client_credentials",
		"appkey":     appKey,
		"appsecret":  appSecret,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Failed to request access token", zap.Error(err))
		return nil, fmt.Errorf("failed to request access token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		c.logger.Error("KIS token endpoint error response",
			zap.Int("statusCode", resp.StatusCode),
			zap.String("response", string(bodyBytes)))
		return nil, fmt.Errorf("KIS token endpoint returned status code %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		c.logger.Error("Failed to decode token response", zap.Error(err))
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}

	if tr.AccessToken == "" {
		return nil, fmt.Errorf("KIS token endpoint returned an empty token")
	}

	// Expiry comes back as a local wall-clock string. Fall back to
	// expires_in when the field is missing or malformed.
	expiresAt, err := time.ParseInLocation(tokenExpiryLayout, tr.Expired, time.Local)
	if err != nil {
		if tr.ExpiresIn > 0 {
			expiresAt = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
		} else {
			return nil, fmt.Errorf("unparseable token expiry %q", tr.Expired)
		}
	}

	return &Token{
		AccessToken: tr.AccessToken,
		ExpiresAt:   expiresAt,
	}, nil
}

type balanceResponse struct {
	RtCd    string `json:"rt_cd"`
	MsgCd   string `json:"msg_cd"`
	Msg1    string `json:"msg1"`
	Output2 []struct {
		DncaTotAmt string `json:"dnca_tot_amt"`
	} `json:"output2"`
}

// FetchBalance queries the account's cash balance from the broker.
func (c *KISClient) FetchBalance(ctx context.Context, kind model.AccountType, accessToken, appKey, appSecret, accountNo string) (float64, error) {
	cano, prdtCd, err := splitAccountNo(accountNo)
	if err != nil {
		return 0, err
	}

	params := url.Values{}
	params.Add("CANO", cano)
	params.Add("ACNT_PRDT_CD", prdtCd)
	params.Add("AFHR_FLPR_YN", "N")
	params.Add("OFL_YN", "")
	params.Add("INQR_DVSN", "02")
	params.Add("UNPR_DVSN", "01")
	params.Add("FUND_STTL_ICLD_YN", "N")
	params.Add("FNCG_AMT_AUTO_RDPT_YN", "N")
	params.Add("PRCS_DVSN", "00")
	params.Add("CTX_AREA_FK100", "")
	params.Add("CTX_AREA_NK100", "")

	reqURL := c.baseURL(kind) + balancePath + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}

	trID := balanceTrIDReal
	if kind == model.AccountTypePaper {
		trID = balanceTrIDPaper
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("authorization", "Bearer "+accessToken)
	req.Header.Set("appkey", appKey)
	req.Header.Set("appsecret", appSecret)
	req.Header.Set("tr_id", trID)
	req.Header.Set("custtype", "P")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("Failed to fetch balance",
			zap.Error(err),
			zap.String("account_no", accountNo))
		return 0, fmt.Errorf("failed to fetch balance: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		c.logger.Error("KIS balance endpoint error response",
			zap.Int("statusCode", resp.StatusCode),
			zap.String("response", string(bodyBytes)))
		return 0, fmt.Errorf("KIS balance endpoint returned status code %d: %s", resp.StatusCode, string(bodyBytes))
	}

	var br balanceResponse
	if err := json.NewDecoder(resp.Body).Decode(&br); err != nil {
		c.logger.Error("Failed to decode balance response", zap.Error(err))
		return 0, fmt.Errorf("failed to decode balance response: %w", err)
	}

	if br.RtCd != "0" {
		c.logger.Error("KIS balance query rejected",
			zap.String("rt_cd", br.RtCd),
			zap.String("msg", br.Msg1),
			zap.String("account_no", accountNo))
		return 0, fmt.Errorf("KIS balance query rejected: %s (%s)", br.Msg1, br.RtCd)
	}

	if len(br.Output2) == 0 {
		c.logger.Warn("KIS balance response has no output2 rows",
			zap.String("account_no", accountNo))
		return 0, fmt.Errorf("KIS balance response has no summary row")
	}

	cash, err := strconv.ParseFloat(br.Output2[0].DncaTotAmt, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid cash amount %q: %w", br.Output2[0].DncaTotAmt, err)
	}

	return cash, nil
}

// splitAccountNo splits "12345678-01" into the 8-digit account number
// and the 2-digit product code the API wants as separate fields.
func splitAccountNo(accountNo string) (cano, prdtCd string, err error) {
	parts := strings.SplitN(accountNo, "-", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("malformed account number %q", accountNo)
	}
	return parts[0], parts[1], nil
}
