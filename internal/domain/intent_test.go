package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestDecideTransition(t *testing.T) {
	tests := []struct {
		name    string
		current IntentStatus
		target  IntentStatus
		want    TransitionDecision
	}{
		{"pending to processing applies", StatusPending, StatusProcessing, DecisionApply},
		{"pending to completed applies", StatusPending, StatusCompleted, DecisionApply},
		{"pending to failed applies", StatusPending, StatusFailed, DecisionApply},
		{"processing to completed applies", StatusProcessing, StatusCompleted, DecisionApply},
		{"processing to failed applies", StatusProcessing, StatusFailed, DecisionApply},
		{"same state is a duplicate", StatusCompleted, StatusCompleted, DecisionDuplicate},
		{"failed replayed as failed is a duplicate", StatusFailed, StatusFailed, DecisionDuplicate},
		{"processing replay is a duplicate", StatusProcessing, StatusProcessing, DecisionDuplicate},
		{"late processing after completed is stale", StatusCompleted, StatusProcessing, DecisionStale},
		{"late processing after failed is stale", StatusFailed, StatusProcessing, DecisionStale},
		{"pending downgrade while processing is stale", StatusProcessing, StatusPending, DecisionStale},
		{"failed after completed is a conflict", StatusCompleted, StatusFailed, DecisionConflict},
		{"completed after failed is a conflict", StatusFailed, StatusCompleted, DecisionConflict},
		{"completed after cancelled is a conflict", StatusCancelled, StatusCompleted, DecisionConflict},
		{"processing after cancelled is stale", StatusCancelled, StatusProcessing, DecisionStale},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DecideTransition(tt.current, tt.target)
			if got != tt.want {
				t.Fatalf("DecideTransition(%s, %s) = %d, want %d", tt.current, tt.target, got, tt.want)
			}
		})
	}
}

func TestTerminal(t *testing.T) {
	terminal := []IntentStatus{StatusCompleted, StatusFailed, StatusCancelled}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Fatalf("expected %s to be terminal", s)
		}
	}
	for _, s := range []IntentStatus{StatusPending, StatusProcessing} {
		if s.Terminal() {
			t.Fatalf("expected %s not to be terminal", s)
		}
	}
}

func TestBalanceEffect(t *testing.T) {
	amount := decimal.NewFromInt(25000)

	deposit := &TransactionIntent{IntentType: IntentDeposit, Amount: amount}
	if !deposit.BalanceEffect().Equal(amount) {
		t.Fatalf("expected deposit effect %s, got %s", amount, deposit.BalanceEffect())
	}

	investment := &TransactionIntent{IntentType: IntentInvestment, Amount: amount}
	if !investment.BalanceEffect().Equal(amount) {
		t.Fatalf("expected investment effect %s, got %s", amount, investment.BalanceEffect())
	}

	withdrawal := &TransactionIntent{IntentType: IntentWithdrawal, Amount: amount}
	if !withdrawal.BalanceEffect().Equal(amount.Neg()) {
		t.Fatalf("expected withdrawal effect %s, got %s", amount.Neg(), withdrawal.BalanceEffect())
	}
}

func TestMapProviderStatus(t *testing.T) {
	tests := []struct {
		raw        string
		want       IntentStatus
		recognized bool
	}{
		{"SUCCESS", StatusCompleted, true},
		{"SUCCESSFUL", StatusCompleted, true},
		{"COMPLETED", StatusCompleted, true},
		{"success", StatusCompleted, true},
		{" Success ", StatusCompleted, true},
		{"FAILED", StatusFailed, true},
		{"FAILURE", StatusFailed, true},
		{"DECLINED", StatusFailed, true},
		{"REJECTED", StatusFailed, true},
		{"PENDING", StatusProcessing, true},
		{"PROCESSING", StatusProcessing, true},
		{"INITIATED", StatusProcessing, true},
		{"REVERSED", "", false},
		{"", "", false},
		{"garbage", "", false},
	}

	for _, tt := range tests {
		got, recognized := MapProviderStatus(tt.raw)
		if got != tt.want || recognized != tt.recognized {
			t.Fatalf("MapProviderStatus(%q) = (%q, %t), want (%q, %t)", tt.raw, got, recognized, tt.want, tt.recognized)
		}
	}
}
