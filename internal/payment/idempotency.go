package payment

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// IdempotencyKey は (userID, receipt) から冪等性キーを組み立てる。
// receiptが空の場合はミリ秒のタイムスタンプから生成し、生成したreceiptも返す。
func IdempotencyKey(userID, receipt string, now time.Time) (key, usedReceipt string) {
	usedReceipt = receipt
	if usedReceipt == "" {
		usedReceipt = fmt.Sprintf("rcpt_%d", now.UnixMilli())
	}
	sum := sha256.Sum256([]byte(userID + ":" + usedReceipt))
	return hex.EncodeToString(sum[:]), usedReceipt
}
