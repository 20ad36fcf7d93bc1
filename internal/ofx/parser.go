// Package ofx reads OFX/QFX bank statements into transactions for the categorised history.
package ofx

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/Veraticus/firetrack/internal/common"
	"github.com/Veraticus/firetrack/internal/model"
	"github.com/aclindsa/ofxgo"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	severityRegex = regexp.MustCompile(`(?i)<SEVERITY>(Info|Warn|Error)</SEVERITY>`)
	// Opening tags that lost their closing bracket at the end of a line.
	tagFixRegex = regexp.MustCompile(`(?m)^(\s*<[A-Z][A-Z0-9._]*[A-Z0-9])$`)
)

// Banking boilerplate stripped from the front of descriptions.
var descriptionPrefixes = []string{
	"CARD PAYMENT TO ",
	"DIRECT DEBIT PAYMENT TO ",
	"DIRECT DEBIT TO ",
	"STANDING ORDER TO ",
	"FASTER PAYMENT TO ",
	"BILL PAYMENT TO ",
	"POS PURCHASE ",
	"DEBIT CARD PURCHASE ",
	"CONTACTLESS PAYMENT ",
	"VISA PURCHASE ",
}

// Statement is the result of parsing one OFX file.
type Statement struct {
	ImportSessionID string
	Accounts        []string
	Transactions    []model.Transaction
}

// Parser implements OFX/QFX file parsing.
type Parser struct {
	logger *slog.Logger
}

// NewParser creates a new OFX parser.
func NewParser(logger *slog.Logger) *Parser {
	return &Parser{logger: common.LoggerOrDefault(logger)}
}

// preprocessOFX fixes common formatting issues in OFX files.
func (p *Parser) preprocessOFX(content string) string {
	content = strings.TrimLeft(content, " \t\r\n")
	content = severityRegex.ReplaceAllStringFunc(content, strings.ToUpper)
	return tagFixRegex.ReplaceAllString(content, "$1>")
}

// ParseFile parses an OFX/QFX file. Every transaction in the file is stamped with
// the same new import session id.
func (p *Parser) ParseFile(ctx context.Context, reader io.Reader) (*Statement, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read OFX file: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	resp, err := ofxgo.ParseResponse(strings.NewReader(p.preprocessOFX(string(content))))
	if err != nil {
		return nil, fmt.Errorf("failed to parse OFX file: %w", err)
	}

	stmt := &Statement{ImportSessionID: uuid.NewString()}
	accounts := make(map[string]bool)
	var bankStmts, ccStmts int

	for _, msg := range resp.Bank {
		s, ok := msg.(*ofxgo.StatementResponse)
		if !ok {
			continue
		}
		bankStmts++
		accountID := string(s.BankAcctFrom.AcctID)
		accounts[accountID] = true
		stmt.Transactions = append(stmt.Transactions, p.convertList(s.BankTranList, accountID, stmt.ImportSessionID)...)
	}

	for _, msg := range resp.CreditCard {
		s, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok {
			continue
		}
		ccStmts++
		accountID := string(s.CCAcctFrom.AcctID)
		accounts[accountID] = true
		stmt.Transactions = append(stmt.Transactions, p.convertList(s.BankTranList, accountID, stmt.ImportSessionID)...)
	}

	for acct := range accounts {
		if acct != "" {
			stmt.Accounts = append(stmt.Accounts, acct)
		}
	}
	sort.Strings(stmt.Accounts)

	p.logger.Info("Parsed OFX file",
		"import_session_id", stmt.ImportSessionID,
		"total_transactions", len(stmt.Transactions),
		"bank_statements", bankStmts,
		"cc_statements", ccStmts)

	return stmt, nil
}

func (p *Parser) convertList(list *ofxgo.TransactionList, accountID, sessionID string) []model.Transaction {
	if list == nil {
		return nil
	}

	txns := make([]model.Transaction, 0, len(list.Transactions))
	for _, ofxTx := range list.Transactions {
		tx, err := p.convertTransaction(ofxTx, accountID, sessionID)
		if err != nil {
			p.logger.Warn("Skipping OFX transaction",
				"account", accountID,
				"fitid", ofxTx.FiTID,
				"error", err)
			continue
		}
		txns = append(txns, tx)
	}
	return txns
}

// convertTransaction converts an OFX transaction to our model. Amounts keep their
// sign: negative is money out.
func (p *Parser) convertTransaction(ofxTx ofxgo.Transaction, accountID, sessionID string) (model.Transaction, error) {
	amount, err := decimal.NewFromString(ofxTx.TrnAmt.FloatString(2))
	if err != nil {
		return model.Transaction{}, fmt.Errorf("invalid amount: %w", err)
	}

	description := p.extractDescription(ofxTx)
	if description == "" {
		return model.Transaction{}, fmt.Errorf("transaction has no description")
	}

	tx := model.Transaction{
		Date:            ofxTx.DtPosted.Time.UTC(),
		Description:     description,
		Amount:          amount,
		AccountID:       accountID,
		ImportSessionID: sessionID,
	}
	tx.ID = transactionID(string(ofxTx.FiTID), tx)
	return tx, nil
}

// transactionID keys a transaction by account and FITID. Files without a FITID get a
// stable name-based id so re-importing the same file does not duplicate rows.
func transactionID(fitID string, tx model.Transaction) string {
	if fitID != "" {
		return tx.AccountID + ":" + fitID
	}
	key := strings.Join([]string{
		tx.AccountID,
		tx.Date.Format("2006-01-02"),
		tx.Amount.StringFixed(2),
		tx.Description,
	}, "|")
	return tx.AccountID + ":" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(key)).String()
}

// extractDescription picks the most informative text the bank supplied.
func (p *Parser) extractDescription(tx ofxgo.Transaction) string {
	if tx.Payee != nil && tx.Payee.Name != "" {
		return strings.TrimSpace(string(tx.Payee.Name))
	}

	name := strings.TrimSpace(string(tx.Name))
	if tx.Memo != "" && isGenericDescription(name) {
		name = strings.TrimSpace(string(tx.Memo))
	}

	upper := strings.ToUpper(name)
	for _, prefix := range descriptionPrefixes {
		if strings.HasPrefix(upper, prefix) {
			name = strings.TrimSpace(name[len(prefix):])
			break
		}
	}
	return name
}

// isGenericDescription checks if a transaction name is too generic.
func isGenericDescription(name string) bool {
	switch strings.ToUpper(name) {
	case "", "DEBIT", "CREDIT", "PURCHASE", "PAYMENT", "CARD PAYMENT", "DIRECT DEBIT", "POS TRANSACTION":
		return true
	default:
		return false
	}
}
