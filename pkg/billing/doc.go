// Package billing records bills and their positions and closes bills.
//
// Closing a bill sums the cost of every position, starting from zero, and
// stamps the bill with the closing time and the final amount in one
// transaction:
//
//	bill, err := svc.CloseBill(ctx, billID)
//	fmt.Println(*bill.FinalAmount)
//
// A position without a cost is a caller error and fails the close; it is
// never counted as zero.
package billing
