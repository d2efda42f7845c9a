package service

import "casecounsel-backend/models"

// strategicDirectives is the per-side framing injected into reasoning prompts
var strategicDirectives = map[models.LegalSide]string{
	models.LegalSideProsecution: `STRATEGIC DIRECTIVE: PROSECUTION
- Build the chain of evidence for every ingredient of the offence.
- Anticipate defence objections on admissibility, delay and procedural lapses, and pre-empt them.
- Cite statutory provisions and binding precedent that sustain conviction and sentence.
- Flag evidentiary gaps the investigation must close before trial.`,

	models.LegalSideDefense: `STRATEGIC DIRECTIVE: DEFENSE
- Test every ingredient of the charge and identify where the prosecution's proof is weakest.
- Look for procedural violations, contradictions in witness statements and benefit-of-doubt arguments.
- Consider bail, quashing and discharge remedies before trial strategy.
- Protect the client's rights at every stage and never concede facts not in evidence.`,

	models.LegalSideCorporate: `STRATEGIC DIRECTIVE: CORPORATE
- Prioritise the client's commercial objectives and risk allocation.
- Review compliance with company law, contract law and sector regulation.
- Identify liability exposure, indemnities, warranties and termination rights.
- Prefer negotiated and documented outcomes over litigation.`,

	models.LegalSideFinancial: `STRATEGIC DIRECTIVE: FINANCIAL
- Focus on monetary exposure, recovery and securities of the client.
- Apply banking, insolvency, tax and securities regulation precisely.
- Trace transactions and quantify claims with figures from the record.
- Note limitation periods and regulatory reporting deadlines.`,

	models.LegalSideCivil: `STRATEGIC DIRECTIVE: CIVIL
- Frame the cause of action, reliefs and the burden of proof.
- Check limitation, jurisdiction, court fee and maintainability first.
- Evaluate interim relief and the balance of convenience.
- Consider settlement and mediation where they serve the client.`,

	models.LegalSideGeneral: `STRATEGIC DIRECTIVE: GENERAL COUNSEL
- Give balanced, neutral analysis of the positions of all parties.
- Identify the governing law, the key issues and the likely outcomes.
- Recommend practical next steps and the documents needed to take them.`,
}

// DirectiveFor returns the strategic directive for side, defaulting to GENERAL
func DirectiveFor(side models.LegalSide) string {
	if d, ok := strategicDirectives[side]; ok {
		return d
	}
	return strategicDirectives[models.LegalSideGeneral]
}
