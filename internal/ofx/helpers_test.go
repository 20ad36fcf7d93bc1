package ofx

import (
	"fmt"
	"strings"
	"time"

	"github.com/Veraticus/firetrack/internal/model"
	"github.com/shopspring/decimal"
)

func testTransaction(desc, amount string) model.Transaction {
	return model.Transaction{
		Date:        time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC),
		Description: desc,
		Amount:      decimal.RequireFromString(amount),
		AccountID:   "acct",
	}
}

// stmtLine is one <STMTTRN> in a generated statement. Day is in January 2024.
type stmtLine struct {
	day    int
	amount string
	fitID  string
	name   string
	memo   string
}

const sgmlHeader = "OFXHEADER:100\nDATA:OFXSGML\nVERSION:102\nSECURITY:NONE\nENCODING:USASCII\n" +
	"CHARSET:1252\nCOMPRESSION:NONE\nOLDFILEUID:NONE\nNEWFILEUID:NONE\n\n"

func ofxStatus(severity string) string {
	return "<STATUS>\n<CODE>0\n<SEVERITY>" + severity + "\n</STATUS>\n"
}

func tranList(lines []stmtLine) string {
	var b strings.Builder
	b.WriteString("<BANKTRANLIST>\n<DTSTART>20240101120000[0:GMT]\n<DTEND>20240131120000[0:GMT]\n")
	for _, l := range lines {
		kind := "DEBIT"
		if !strings.HasPrefix(l.amount, "-") {
			kind = "CREDIT"
		}
		fmt.Fprintf(&b, "<STMTTRN>\n<TRNTYPE>%s\n<DTPOSTED>202401%02d120000[0:GMT]\n<TRNAMT>%s\n", kind, l.day, l.amount)
		if l.fitID != "" {
			fmt.Fprintf(&b, "<FITID>%s\n", l.fitID)
		}
		fmt.Fprintf(&b, "<NAME>%s\n", l.name)
		if l.memo != "" {
			fmt.Fprintf(&b, "<MEMO>%s\n", l.memo)
		}
		b.WriteString("</STMTTRN>\n")
	}
	b.WriteString("</BANKTRANLIST>\n")
	return b.String()
}

func ofxDocument(severity, body string) string {
	return sgmlHeader + "<OFX>\n<SIGNONMSGSRSV1>\n<SONRS>\n" + ofxStatus(severity) +
		"<DTSERVER>20240315120000[0:GMT]\n<LANGUAGE>ENG\n</SONRS>\n</SIGNONMSGSRSV1>\n" + body + "</OFX>"
}

func ledger(balance string) string {
	return "<LEDGERBAL>\n<BALAMT>" + balance + "\n<DTASOF>20240131120000[0:GMT]\n</LEDGERBAL>\n"
}

// bankOFX renders a current account statement for a UK bank.
func bankOFX(severity, acct string, lines ...stmtLine) string {
	return ofxDocument(severity, "<BANKMSGSRSV1>\n<STMTTRNRS>\n<TRNUID>1\n"+ofxStatus(severity)+
		"<STMTRS>\n<CURDEF>GBP\n<BANKACCTFROM>\n<BANKID>123456789\n<ACCTID>"+acct+"\n<ACCTTYPE>CHECKING\n</BANKACCTFROM>\n"+
		tranList(lines)+ledger("1000.00")+"</STMTRS>\n</STMTTRNRS>\n</BANKMSGSRSV1>\n")
}

// cardOFX renders a credit card statement.
func cardOFX(acct string, lines ...stmtLine) string {
	return ofxDocument("INFO", "<CREDITCARDMSGSRSV1>\n<CCSTMTTRNRS>\n<TRNUID>1\n"+ofxStatus("INFO")+
		"<CCSTMTRS>\n<CURDEF>GBP\n<CCACCTFROM>\n<ACCTID>"+acct+"\n</CCACCTFROM>\n"+
		tranList(lines)+ledger("-500.00")+"</CCSTMTRS>\n</CCSTMTTRNRS>\n</CREDITCARDMSGSRSV1>\n")
}

var (
	sampleBankOFX = bankOFX("INFO", "1234567890",
		stmtLine{day: 15, amount: "-25.50", fitID: "2024011501", name: "CARD PAYMENT TO PRET A MANGER"},
		stmtLine{day: 20, amount: "-125.00", fitID: "2024012001", name: "DIRECT DEBIT", memo: "THAMES WATER"},
		stmtLine{day: 25, amount: "2500.00", fitID: "2024012501", name: "ACME LTD SALARY"},
	)

	sampleCreditCardOFX = cardOFX("4111111111111111",
		stmtLine{day: 10, amount: "-45.99", fitID: "CC2024011001", name: "AMAZON.COM*RT4Y7HG2"},
		stmtLine{day: 15, amount: "-15.00", fitID: "CC2024011501", name: "NETFLIX.COM"},
	)
)
