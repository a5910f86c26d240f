package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebook/carebook/internal/platform/notification"
)

type mockAvailabilityRepo struct {
	byID map[uuid.UUID]*Availability
}

func newMockAvailabilityRepo() *mockAvailabilityRepo {
	return &mockAvailabilityRepo{byID: make(map[uuid.UUID]*Availability)}
}

func (m *mockAvailabilityRepo) Create(_ context.Context, a *Availability) error {
	a.ID = uuid.New()
	m.byID[a.ID] = a
	return nil
}

func (m *mockAvailabilityRepo) GetByID(_ context.Context, id uuid.UUID) (*Availability, error) {
	a, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

func (m *mockAvailabilityRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID) ([]*Availability, error) {
	var out []*Availability
	for _, a := range m.byID {
		if a.DoctorID == doctorID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *mockAvailabilityRepo) Update(_ context.Context, a *Availability) error {
	if _, ok := m.byID[a.ID]; !ok {
		return ErrNotFound
	}
	m.byID[a.ID] = a
	return nil
}

func (m *mockAvailabilityRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.byID[id]; !ok {
		return ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

type mockSlotRepo struct {
	byID map[uuid.UUID]*Slot
}

func newMockSlotRepo() *mockSlotRepo {
	return &mockSlotRepo{byID: make(map[uuid.UUID]*Slot)}
}

func (m *mockSlotRepo) Create(_ context.Context, s *Slot) error {
	s.ID = uuid.New()
	m.byID[s.ID] = s
	return nil
}

func (m *mockSlotRepo) GetByID(_ context.Context, id uuid.UUID) (*Slot, error) {
	s, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return s, nil
}

func (m *mockSlotRepo) List(_ context.Context, f SlotFilter, limit, offset int) ([]*Slot, int, error) {
	var out []*Slot
	for _, s := range m.byID {
		if f.DoctorID != uuid.Nil && s.DoctorID != f.DoctorID {
			continue
		}
		if f.Status != "" && s.Status != f.Status {
			continue
		}
		out = append(out, s)
	}
	return out, len(out), nil
}

func (m *mockSlotRepo) TransitionStatus(_ context.Context, id uuid.UUID, from, to string) error {
	s, ok := m.byID[id]
	if !ok {
		return ErrNotFound
	}
	if s.Status != from {
		return ErrSlotUnavailable
	}
	s.Status = to
	return nil
}

func (m *mockSlotRepo) ExistsOverlapping(_ context.Context, doctorID uuid.UUID, start, end time.Time) (bool, error) {
	for _, s := range m.byID {
		if s.DoctorID == doctorID && s.StartTime.Before(end) && s.EndTime.After(start) {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockSlotRepo) Delete(_ context.Context, id uuid.UUID) error {
	if _, ok := m.byID[id]; !ok {
		return ErrNotFound
	}
	delete(m.byID, id)
	return nil
}

type mockAppointmentRepo struct {
	byID      map[uuid.UUID]*Appointment
	createErr error
}

func newMockAppointmentRepo() *mockAppointmentRepo {
	return &mockAppointmentRepo{byID: make(map[uuid.UUID]*Appointment)}
}

func (m *mockAppointmentRepo) Create(_ context.Context, a *Appointment) error {
	if m.createErr != nil {
		return m.createErr
	}
	a.ID = uuid.New()
	m.byID[a.ID] = a
	return nil
}

func (m *mockAppointmentRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := m.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

func (m *mockAppointmentRepo) Update(_ context.Context, a *Appointment) error {
	if _, ok := m.byID[a.ID]; !ok {
		return ErrNotFound
	}
	m.byID[a.ID] = a
	return nil
}

func (m *mockAppointmentRepo) ListByPatient(_ context.Context, patientID uuid.UUID, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	var out []*Appointment
	for _, a := range m.byID {
		if a.PatientID != patientID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, a)
	}
	return out, len(out), nil
}

func (m *mockAppointmentRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID, f AppointmentFilter, limit, offset int) ([]*Appointment, int, error) {
	var out []*Appointment
	for _, a := range m.byID {
		if a.DoctorID != doctorID {
			continue
		}
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		out = append(out, a)
	}
	return out, len(out), nil
}

func (m *mockAppointmentRepo) CountByStatus(_ context.Context) (map[string]int, error) {
	counts := make(map[string]int)
	for _, a := range m.byID {
		counts[a.Status]++
	}
	return counts, nil
}

type sentNotification struct {
	TemplateID string
	Recipient  string
	Data       map[string]string
}

type mockNotifier struct {
	sent []sentNotification
	err  error
}

func (m *mockNotifier) SendFromTemplate(_ context.Context, templateID string, data map[string]string, recipient string) (*notification.Notification, error) {
	if m.err != nil {
		return nil, m.err
	}
	m.sent = append(m.sent, sentNotification{TemplateID: templateID, Recipient: recipient, Data: data})
	return &notification.Notification{}, nil
}

type mockDirectory struct {
	contacts map[uuid.UUID]Contact
}

func (m *mockDirectory) ContactFor(_ context.Context, accountID uuid.UUID) (Contact, error) {
	c, ok := m.contacts[accountID]
	if !ok {
		return Contact{}, errors.New("unknown account")
	}
	return c, nil
}

type bookingFixture struct {
	svc          *Service
	availability *mockAvailabilityRepo
	slots        *mockSlotRepo
	appointments *mockAppointmentRepo
	notifier     *mockNotifier
	directory    *mockDirectory
}

func newBookingFixture() *bookingFixture {
	f := &bookingFixture{
		availability: newMockAvailabilityRepo(),
		slots:        newMockSlotRepo(),
		appointments: newMockAppointmentRepo(),
		notifier:     &mockNotifier{},
		directory:    &mockDirectory{contacts: make(map[uuid.UUID]Contact)},
	}
	f.svc = NewService(f.availability, f.slots, f.appointments, f.notifier, f.directory, zerolog.Nop())
	return f
}

func (f *bookingFixture) addContact(id uuid.UUID, name, email string) {
	f.directory.contacts[id] = Contact{Name: name, Email: email}
}

func (f *bookingFixture) addFreeSlot(doctorID uuid.UUID, start time.Time, minutes int) *Slot {
	slot := &Slot{
		DoctorID:  doctorID,
		StartTime: start,
		EndTime:   start.Add(time.Duration(minutes) * time.Minute),
		Status:    SlotFree,
	}
	_ = f.slots.Create(context.Background(), slot)
	return slot
}

func TestCreateAvailabilityValidation(t *testing.T) {
	f := newBookingFixture()
	doctorID := uuid.New()

	cases := []struct {
		name string
		a    Availability
	}{
		{"bad weekday", Availability{DoctorID: doctorID, Weekday: 7, StartTime: "09:00", EndTime: "12:00", SlotMinutes: 30}},
		{"bad clock", Availability{DoctorID: doctorID, Weekday: 1, StartTime: "9am", EndTime: "12:00", SlotMinutes: 30}},
		{"start after end", Availability{DoctorID: doctorID, Weekday: 1, StartTime: "14:00", EndTime: "12:00", SlotMinutes: 30}},
		{"window shorter than slot", Availability{DoctorID: doctorID, Weekday: 1, StartTime: "09:00", EndTime: "09:15", SlotMinutes: 30}},
		{"zero slot minutes", Availability{DoctorID: doctorID, Weekday: 1, StartTime: "09:00", EndTime: "12:00", SlotMinutes: 0}},
		{"missing doctor", Availability{Weekday: 1, StartTime: "09:00", EndTime: "12:00", SlotMinutes: 30}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := tc.a
			if err := f.svc.CreateAvailability(context.Background(), &a); err == nil {
				t.Fatal("expected validation error, got nil")
			}
		})
	}

	good := Availability{DoctorID: doctorID, Weekday: 1, StartTime: "09:00", EndTime: "12:00", SlotMinutes: 30}
	if err := f.svc.CreateAvailability(context.Background(), &good); err != nil {
		t.Fatalf("valid availability rejected: %v", err)
	}
	if !good.Active {
		t.Error("new availability should be active")
	}
}

func TestGenerateSlotsExpandsWindows(t *testing.T) {
	f := newBookingFixture()
	doctorID := uuid.New()

	// Mondays 09:00-10:30 in 30-minute slots.
	a := Availability{DoctorID: doctorID, Weekday: 1, StartTime: "09:00", EndTime: "10:30", SlotMinutes: 30}
	if err := f.svc.CreateAvailability(context.Background(), &a); err != nil {
		t.Fatalf("create availability: %v", err)
	}

	// 2026-09-07 is a Monday; a one-week range contains exactly one Monday.
	from := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 9, 13, 0, 0, 0, 0, time.UTC)

	created, err := f.svc.GenerateSlots(context.Background(), doctorID, from, to)
	if err != nil {
		t.Fatalf("generate slots: %v", err)
	}
	if len(created) != 3 {
		t.Fatalf("expected 3 slots, got %d", len(created))
	}

	first := created[0]
	want := time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC)
	if !first.StartTime.Equal(want) {
		t.Errorf("first slot starts at %v, want %v", first.StartTime, want)
	}
	if first.Status != SlotFree {
		t.Errorf("generated slot status = %q, want %q", first.Status, SlotFree)
	}
}

func TestGenerateSlotsIdempotent(t *testing.T) {
	f := newBookingFixture()
	doctorID := uuid.New()

	a := Availability{DoctorID: doctorID, Weekday: 1, StartTime: "09:00", EndTime: "10:00", SlotMinutes: 30}
	if err := f.svc.CreateAvailability(context.Background(), &a); err != nil {
		t.Fatalf("create availability: %v", err)
	}

	from := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	to := from

	first, err := f.svc.GenerateSlots(context.Background(), doctorID, from, to)
	if err != nil {
		t.Fatalf("first generation: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected 2 slots, got %d", len(first))
	}

	second, err := f.svc.GenerateSlots(context.Background(), doctorID, from, to)
	if err != nil {
		t.Fatalf("second generation: %v", err)
	}
	if len(second) != 0 {
		t.Errorf("regeneration created %d duplicate slots", len(second))
	}
}

func TestGenerateSlotsSkipsInactiveWindows(t *testing.T) {
	f := newBookingFixture()
	doctorID := uuid.New()

	a := Availability{DoctorID: doctorID, Weekday: 1, StartTime: "09:00", EndTime: "10:00", SlotMinutes: 30}
	if err := f.svc.CreateAvailability(context.Background(), &a); err != nil {
		t.Fatalf("create availability: %v", err)
	}
	a.Active = false
	if err := f.availability.Update(context.Background(), &a); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	from := time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC)
	created, err := f.svc.GenerateSlots(context.Background(), doctorID, from, from)
	if err != nil {
		t.Fatalf("generate slots: %v", err)
	}
	if len(created) != 0 {
		t.Errorf("inactive window produced %d slots", len(created))
	}
}

func TestBookAppointment(t *testing.T) {
	f := newBookingFixture()
	doctorID := uuid.New()
	patientID := uuid.New()
	f.addContact(doctorID, "Dr. Chen", "chen@clinic.example")
	f.addContact(patientID, "Alice Ng", "alice@example.com")

	slot := f.addFreeSlot(doctorID, time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC), 30)

	reason := "annual checkup"
	appt, err := f.svc.BookAppointment(context.Background(), patientID, slot.ID, &reason)
	if err != nil {
		t.Fatalf("book appointment: %v", err)
	}
	if appt.Status != AppointmentBooked {
		t.Errorf("status = %q, want %q", appt.Status, AppointmentBooked)
	}
	if appt.DoctorID != doctorID {
		t.Errorf("doctor id = %v, want %v", appt.DoctorID, doctorID)
	}
	if !appt.StartTime.Equal(slot.StartTime) {
		t.Errorf("appointment start %v does not match slot start %v", appt.StartTime, slot.StartTime)
	}

	got, _ := f.slots.GetByID(context.Background(), slot.ID)
	if got.Status != SlotBooked {
		t.Errorf("slot status = %q, want %q", got.Status, SlotBooked)
	}

	if len(f.notifier.sent) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(f.notifier.sent))
	}
	sent := f.notifier.sent[0]
	if sent.TemplateID != notification.TemplateAppointmentConfirmation {
		t.Errorf("template = %q, want %q", sent.TemplateID, notification.TemplateAppointmentConfirmation)
	}
	if sent.Recipient != "alice@example.com" {
		t.Errorf("recipient = %q", sent.Recipient)
	}
	if sent.Data["doctor_name"] != "Dr. Chen" {
		t.Errorf("doctor_name = %q", sent.Data["doctor_name"])
	}
}

func TestBookAppointmentSlotTaken(t *testing.T) {
	f := newBookingFixture()
	doctorID := uuid.New()
	first := uuid.New()
	second := uuid.New()
	f.addContact(doctorID, "Dr. Chen", "chen@clinic.example")
	f.addContact(first, "Alice", "alice@example.com")
	f.addContact(second, "Bob", "bob@example.com")

	slot := f.addFreeSlot(doctorID, time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC), 30)

	if _, err := f.svc.BookAppointment(context.Background(), first, slot.ID, nil); err != nil {
		t.Fatalf("first booking: %v", err)
	}
	_, err := f.svc.BookAppointment(context.Background(), second, slot.ID, nil)
	if !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}
}

func TestBookAppointmentReleasesSlotOnFailure(t *testing.T) {
	f := newBookingFixture()
	doctorID := uuid.New()
	patientID := uuid.New()

	slot := f.addFreeSlot(doctorID, time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC), 30)
	f.appointments.createErr = errors.New("insert failed")

	if _, err := f.svc.BookAppointment(context.Background(), patientID, slot.ID, nil); err == nil {
		t.Fatal("expected booking to fail")
	}

	got, _ := f.slots.GetByID(context.Background(), slot.ID)
	if got.Status != SlotFree {
		t.Errorf("slot status = %q after failed booking, want %q", got.Status, SlotFree)
	}
}

func TestCancelAppointment(t *testing.T) {
	f := newBookingFixture()
	doctorID := uuid.New()
	patientID := uuid.New()
	f.addContact(doctorID, "Dr. Chen", "chen@clinic.example")
	f.addContact(patientID, "Alice", "alice@example.com")

	slot := f.addFreeSlot(doctorID, time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC), 30)
	appt, err := f.svc.BookAppointment(context.Background(), patientID, slot.ID, nil)
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	reason := "feeling better"
	cancelled, err := f.svc.CancelAppointment(context.Background(), appt.ID, &reason)
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != AppointmentCancelled {
		t.Errorf("status = %q, want %q", cancelled.Status, AppointmentCancelled)
	}
	if cancelled.CancellationReason == nil || *cancelled.CancellationReason != reason {
		t.Error("cancellation reason not recorded")
	}

	got, _ := f.slots.GetByID(context.Background(), slot.ID)
	if got.Status != SlotFree {
		t.Errorf("slot status = %q after cancel, want %q", got.Status, SlotFree)
	}

	last := f.notifier.sent[len(f.notifier.sent)-1]
	if last.TemplateID != notification.TemplateAppointmentCancelled {
		t.Errorf("template = %q, want %q", last.TemplateID, notification.TemplateAppointmentCancelled)
	}
}

func TestCancelAppointmentRejectsNonBooked(t *testing.T) {
	f := newBookingFixture()
	doctorID := uuid.New()
	patientID := uuid.New()
	f.addContact(doctorID, "Dr. Chen", "chen@clinic.example")
	f.addContact(patientID, "Alice", "alice@example.com")

	slot := f.addFreeSlot(doctorID, time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC), 30)
	appt, err := f.svc.BookAppointment(context.Background(), patientID, slot.ID, nil)
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	if _, err := f.svc.CancelAppointment(context.Background(), appt.ID, nil); err != nil {
		t.Fatalf("first cancel: %v", err)
	}

	_, err = f.svc.CancelAppointment(context.Background(), appt.ID, nil)
	if !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}
}

func TestCompleteAndNoShowTransitions(t *testing.T) {
	f := newBookingFixture()
	doctorID := uuid.New()
	patientID := uuid.New()
	f.addContact(doctorID, "Dr. Chen", "chen@clinic.example")
	f.addContact(patientID, "Alice", "alice@example.com")

	slotA := f.addFreeSlot(doctorID, time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC), 30)
	slotB := f.addFreeSlot(doctorID, time.Date(2026, 9, 7, 9, 30, 0, 0, time.UTC), 30)

	apptA, err := f.svc.BookAppointment(context.Background(), patientID, slotA.ID, nil)
	if err != nil {
		t.Fatalf("book a: %v", err)
	}
	apptB, err := f.svc.BookAppointment(context.Background(), patientID, slotB.ID, nil)
	if err != nil {
		t.Fatalf("book b: %v", err)
	}

	done, err := f.svc.CompleteAppointment(context.Background(), apptA.ID)
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if done.Status != AppointmentCompleted {
		t.Errorf("status = %q, want %q", done.Status, AppointmentCompleted)
	}

	missed, err := f.svc.MarkNoShow(context.Background(), apptB.ID)
	if err != nil {
		t.Fatalf("no-show: %v", err)
	}
	if missed.Status != AppointmentNoShow {
		t.Errorf("status = %q, want %q", missed.Status, AppointmentNoShow)
	}

	// Neither can be completed again.
	if _, err := f.svc.CompleteAppointment(context.Background(), apptA.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("re-complete: expected ErrInvalidTransition, got %v", err)
	}
}

func TestCreateSlotRejectsOverlap(t *testing.T) {
	f := newBookingFixture()
	doctorID := uuid.New()
	start := time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC)
	f.addFreeSlot(doctorID, start, 30)

	slot := &Slot{DoctorID: doctorID, StartTime: start.Add(15 * time.Minute), EndTime: start.Add(45 * time.Minute)}
	if err := f.svc.CreateSlot(context.Background(), slot); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("overlapping create: expected ErrSlotUnavailable, got %v", err)
	}

	slot = &Slot{DoctorID: doctorID, StartTime: start.Add(30 * time.Minute), EndTime: start.Add(60 * time.Minute)}
	if err := f.svc.CreateSlot(context.Background(), slot); err != nil {
		t.Fatalf("adjacent create: %v", err)
	}
	if slot.Status != SlotFree {
		t.Errorf("status = %q, want %q", slot.Status, SlotFree)
	}
}

func TestDeleteSlotRefusesBooked(t *testing.T) {
	f := newBookingFixture()
	doctorID := uuid.New()
	patientID := uuid.New()
	f.addContact(doctorID, "Dr. Kim", "kim@example.com")
	f.addContact(patientID, "Ana Silva", "ana@example.com")
	slot := f.addFreeSlot(doctorID, time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC), 30)

	if _, err := f.svc.BookAppointment(context.Background(), patientID, slot.ID, nil); err != nil {
		t.Fatalf("book: %v", err)
	}
	if err := f.svc.DeleteSlot(context.Background(), slot.ID); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("deleting booked slot: expected ErrSlotUnavailable, got %v", err)
	}

	free := f.addFreeSlot(doctorID, time.Date(2026, 9, 7, 10, 0, 0, 0, time.UTC), 30)
	if err := f.svc.DeleteSlot(context.Background(), free.ID); err != nil {
		t.Fatalf("deleting free slot: %v", err)
	}
	if _, err := f.slots.GetByID(context.Background(), free.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("slot still present after delete")
	}
}

func TestBlockAndUnblockSlot(t *testing.T) {
	f := newBookingFixture()
	doctorID := uuid.New()
	slot := f.addFreeSlot(doctorID, time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC), 30)

	if err := f.svc.BlockSlot(context.Background(), slot.ID); err != nil {
		t.Fatalf("block: %v", err)
	}
	got, _ := f.slots.GetByID(context.Background(), slot.ID)
	if got.Status != SlotBlocked {
		t.Errorf("status = %q, want %q", got.Status, SlotBlocked)
	}

	// A blocked slot cannot be booked.
	if _, err := f.svc.BookAppointment(context.Background(), uuid.New(), slot.ID, nil); !errors.Is(err, ErrSlotUnavailable) {
		t.Errorf("booking blocked slot: expected ErrSlotUnavailable, got %v", err)
	}

	if err := f.svc.UnblockSlot(context.Background(), slot.ID); err != nil {
		t.Fatalf("unblock: %v", err)
	}
	got, _ = f.slots.GetByID(context.Background(), slot.ID)
	if got.Status != SlotFree {
		t.Errorf("status = %q, want %q", got.Status, SlotFree)
	}
}

func TestNotificationFailureDoesNotFailBooking(t *testing.T) {
	f := newBookingFixture()
	doctorID := uuid.New()
	patientID := uuid.New()
	f.addContact(doctorID, "Dr. Chen", "chen@clinic.example")
	f.addContact(patientID, "Alice", "alice@example.com")
	f.notifier.err = errors.New("smtp down")

	slot := f.addFreeSlot(doctorID, time.Date(2026, 9, 7, 9, 0, 0, 0, time.UTC), 30)
	if _, err := f.svc.BookAppointment(context.Background(), patientID, slot.ID, nil); err != nil {
		t.Fatalf("booking failed because of notifier: %v", err)
	}
}
