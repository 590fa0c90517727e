package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/yourorg/trading-engine/internal/client"
	"github.com/yourorg/trading-engine/internal/metrics"
	"github.com/yourorg/trading-engine/internal/model"
	"github.com/yourorg/trading-engine/internal/ratelimit"
	"github.com/yourorg/trading-engine/internal/repository"
)

// BrokerClient is the slice of the KIS REST API the account service uses.
type BrokerClient interface {
	IssueToken(ctx context.Context, kind model.AccountType, appKey, appSecret string) (*client.Token, error)
	FetchBalance(ctx context.Context, kind model.AccountType, accessToken, appKey, appSecret, accountNo string) (float64, error)
}

// AccountService manages broker access tokens and keeps the tracked
// balances of paper and real accounts in line with the broker. Mock
// balances never pass through here; reconciliation adjusts them inside
// its own transactions.
type AccountService struct {
	accounts repository.AccountStore
	broker   BrokerClient
	limits   *ratelimit.Registry
	logger   *zap.Logger

	now func() time.Time
}

// NewAccountService creates an account service.
func NewAccountService(accounts repository.AccountStore, broker BrokerClient, limits *ratelimit.Registry, logger *zap.Logger) *AccountService {
	return &AccountService{
		accounts: accounts,
		broker:   broker,
		limits:   limits,
		logger:   logger,
		now:      time.Now,
	}
}

// EnsureToken returns a usable access token for the account, reusing the
// cached one while it is still valid and issuing plus persisting a fresh
// one otherwise. The account's cached token fields are updated in place.
func (s *AccountService) EnsureToken(ctx context.Context, acct *model.Account) (string, error) {
	if acct.TokenValid(s.now()) {
		return *acct.AccessToken, nil
	}

	tok, err := s.broker.IssueToken(ctx, acct.AccountType, acct.AppKey, acct.AppSecret)
	if err != nil {
		return "", fmt.Errorf("issue token for account %s: %w", acct.AccountNo, err)
	}
	if err := s.accounts.UpdateToken(ctx, acct.ID, tok.AccessToken, tok.ExpiresAt); err != nil {
		return "", fmt.Errorf("persist token for account %s: %w", acct.AccountNo, err)
	}
	acct.AccessToken = &tok.AccessToken
	acct.TokenExpiredAt = &tok.ExpiresAt
	s.logger.Info("Issued new broker token",
		zap.String("account_no", acct.AccountNo),
		zap.Time("expires_at", tok.ExpiresAt))
	return tok.AccessToken, nil
}

// SyncBalance fetches the account's cash balance from the broker and
// overwrites the tracked balance with it. The broker call waits on the
// account's rate limiter, so SyncBalance may block up to the limiter
// window.
func (s *AccountService) SyncBalance(ctx context.Context, accountNo string) (float64, error) {
	acct, err := s.accounts.GetByAccountNo(ctx, accountNo)
	if err != nil {
		return 0, fmt.Errorf("load account %s: %w", accountNo, err)
	}
	if !acct.AccountType.External() {
		return 0, fmt.Errorf("account %s is %s; its balance is tracked locally", accountNo, acct.AccountType)
	}

	token, err := s.EnsureToken(ctx, acct)
	if err != nil {
		metrics.RecordBalanceSync(string(acct.AccountType), "error")
		return 0, err
	}

	if err := s.limits.For(acct.AccountNo, acct.AccountType).Wait(ctx); err != nil {
		metrics.RecordBalanceSync(string(acct.AccountType), "error")
		return 0, err
	}
	cash, err := s.broker.FetchBalance(ctx, acct.AccountType, token, acct.AppKey, acct.AppSecret, acct.AccountNo)
	if err != nil {
		metrics.RecordBalanceSync(string(acct.AccountType), "error")
		return 0, fmt.Errorf("fetch balance for account %s: %w", accountNo, err)
	}

	if err := s.accounts.UpdateBalance(ctx, acct.ID, cash); err != nil {
		metrics.RecordBalanceSync(string(acct.AccountType), "error")
		return 0, fmt.Errorf("store balance for account %s: %w", accountNo, err)
	}
	metrics.RecordBalanceSync(string(acct.AccountType), "ok")
	s.logger.Info("Synced account balance",
		zap.String("account_no", acct.AccountNo),
		zap.String("account_type", string(acct.AccountType)),
		zap.Float64("balance", cash))
	return cash, nil
}
