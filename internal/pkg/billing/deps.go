package billing

// Deps wires the engine's ports. Stores and Provider are required;
// Notifier, RetryScheduler and Archiver are optional.
type Deps struct {
	Events         EventStore
	Subscriptions  SubscriptionStore
	History        HistoryStore
	Customers      CustomerStore
	Provider       PaymentProviderClient
	Notifier       EmailNotifier
	RetryScheduler InvoiceRetryScheduler
	Archiver       PayloadArchiver
	Logger         Logger
	Clock          Clock
	Config         Config
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = nopLogger{}
	}
	if d.Clock == nil {
		d.Clock = SystemClock{}
	}
	d.Config = d.Config.withDefaults()
	return d
}

// Engine bundles the components built from one set of Deps.
type Engine struct {
	Dispatcher *Dispatcher
	Reconciler *Reconciler
	Resolver   *CustomerResolver
	Rotation   *RotationEngine
}

func NewEngine(d Deps) *Engine {
	d = d.withDefaults()
	reconciler := NewReconciler(d)
	resolver := NewCustomerResolver(d)
	rotation := NewRotationEngine(d)
	return &Engine{
		Dispatcher: NewDispatcher(d, reconciler, resolver, rotation),
		Reconciler: reconciler,
		Resolver:   resolver,
		Rotation:   rotation,
	}
}
