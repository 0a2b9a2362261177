package types

// Payment method variants the dispatcher can execute.
const (
	MethodSmartContract   = "SMART_CONTRACT"
	MethodEscrow          = "ESCROW"
	MethodOnChainCrypto   = "ON_CHAIN_CRYPTO"
	MethodPlatformBalance = "PLATFORM_BALANCE"
	MethodBankTransfer    = "BANK_TRANSFER"
	MethodWalletCredit    = "WALLET_CREDIT"
	MethodPlatformCredit  = "PLATFORM_CREDIT"
)

// PaymentMethods lists every supported variant.
var PaymentMethods = []string{
	MethodSmartContract,
	MethodEscrow,
	MethodOnChainCrypto,
	MethodPlatformBalance,
	MethodBankTransfer,
	MethodWalletCredit,
	MethodPlatformCredit,
}

// SupportedPaymentMethod reports whether the given method is one of the
// configured variants.
func SupportedPaymentMethod(method string) bool {
	for _, m := range PaymentMethods {
		if m == method {
			return true
		}
	}
	return false
}

// OnChainMethod reports whether payments via the given method settle on a
// blockchain and therefore incur a gas fee.
func OnChainMethod(method string) bool {
	return method == MethodSmartContract || method == MethodOnChainCrypto
}
