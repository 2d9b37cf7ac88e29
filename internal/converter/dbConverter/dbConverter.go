package dbConverter

import (
	"time"

	"github.com/tiangangQiu/FundVal-Live/internal/model"
	"github.com/tiangangQiu/FundVal-Live/internal/model/dbModel"
)

func ConvertFund(dbFund dbModel.Fund) model.FundSearchResult {
	return model.FundSearchResult{
		Code: dbFund.Code,
		Name: dbFund.Name,
		Type: dbFund.Type,
	}
}

func ConvertAccount(dbAccount dbModel.Account) model.Account {
	return model.Account{
		ID:          dbAccount.ID,
		Name:        dbAccount.Name,
		Description: dbAccount.Description.String,
	}
}

func ConvertTransaction(dbTrx dbModel.Transaction) model.Transaction {
	trx := model.Transaction{
		ID:             dbTrx.ID,
		AccountID:      dbTrx.AccountID,
		Code:           dbTrx.Code,
		OpType:         dbTrx.OpType,
		AmountCny:      dbTrx.AmountCny,
		SharesRedeemed: dbTrx.SharesRedeemed,
		ConfirmDate:    dbTrx.ConfirmDate,
		ConfirmNav:     dbTrx.ConfirmNav,
		SharesAdded:    dbTrx.SharesAdded,
		CostAfter:      dbTrx.CostAfter,
		CreatedAt:      dbTrx.CreatedAt.Format(time.RFC3339),
	}
	if dbTrx.AppliedAt.Valid {
		trx.AppliedAt = dbTrx.AppliedAt.Time.Format(time.RFC3339)
	}
	return trx
}

func ConvertPrompt(dbPrompt dbModel.Prompt) model.Prompt {
	return model.Prompt{
		ID:           dbPrompt.ID,
		Name:         dbPrompt.Name,
		SystemPrompt: dbPrompt.SystemPrompt,
		UserPrompt:   dbPrompt.UserPrompt,
		IsDefault:    dbPrompt.IsDefault,
		CreatedAt:    dbPrompt.CreatedAt.Format(time.RFC3339),
		UpdatedAt:    dbPrompt.UpdatedAt.Format(time.RFC3339),
	}
}

func ConvertSubscription(dbSub dbModel.Subscription) model.Subscription {
	return model.Subscription{
		ID:               dbSub.ID,
		Code:             dbSub.Code,
		ChatID:           dbSub.ChatID,
		ThresholdUp:      dbSub.ThresholdUp,
		ThresholdDown:    dbSub.ThresholdDown,
		EnableDigest:     dbSub.EnableDigest,
		DigestTime:       dbSub.DigestTime,
		EnableVolatility: dbSub.EnableVolatility,
	}
}

func ConvertUser(dbUser dbModel.User) model.User {
	return model.User{
		ID:       dbUser.ID,
		Username: dbUser.Username,
		IsAdmin:  dbUser.IsAdmin,
	}
}
